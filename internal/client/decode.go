package client

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/naramarket/crawler/internal/crawl"
)

// listEnvelope mirrors the data.go.kr response wrapper. The items field
// is deliberately raw: the API returns a list, an {"item": ...}
// wrapper, or a bare object depending on the row count.
type listEnvelope struct {
	Response struct {
		Body struct {
			Items      json.RawMessage `json:"items"`
			TotalCount json.Number     `json:"totalCount"`
		} `json:"body"`
	} `json:"response"`
}

type detailEnvelope struct {
	ResultList []struct {
		Name  string `json:"prdctAtrbNm"`
		Value string `json:"prdctAtrbVl"`
	} `json:"resultList"`
}

func decodeListPage(body []byte) (crawl.ListPage, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		// Malformed bodies show up when the upstream gateway is
		// overloaded and answers with HTML; treat as transient.
		return crawl.ListPage{}, &crawl.RemoteError{Transient: true, Err: fmt.Errorf("decode list response: %w", err)}
	}

	items, err := normalizeItems(env.Response.Body.Items)
	if err != nil {
		return crawl.ListPage{}, &crawl.RemoteError{Transient: true, Err: err}
	}

	total, _ := env.Response.Body.TotalCount.Int64()
	page := crawl.ListPage{TotalCount: int(total)}
	for _, raw := range items {
		page.Items = append(page.Items, toStub(raw))
	}
	return page, nil
}

// normalizeItems flattens the three shapes the API uses for the items
// field into a plain slice.
func normalizeItems(raw json.RawMessage) ([]map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` {
		return nil, nil
	}

	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("unexpected items shape: %w", err)
	}
	inner, ok := wrapper["item"]
	if !ok {
		// A bare single object.
		var single map[string]any
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("unexpected items shape: %w", err)
		}
		return []map[string]any{single}, nil
	}

	if err := json.Unmarshal(inner, &list); err == nil {
		return list, nil
	}
	var single map[string]any
	if err := json.Unmarshal(inner, &single); err != nil {
		return nil, fmt.Errorf("unexpected item shape: %w", err)
	}
	return []map[string]any{single}, nil
}

func toStub(raw map[string]any) crawl.ItemStub {
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		if s := fieldString(v); s != "" {
			fields[k] = s
		}
	}
	return crawl.ItemStub{ID: fields[IDField], Fields: fields}
}

func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func decodeDetail(body []byte) (map[string]string, error) {
	var env detailEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &crawl.RemoteError{Transient: true, Err: fmt.Errorf("decode detail response: %w", err)}
	}
	attrs := make(map[string]string, len(env.ResultList))
	for _, row := range env.ResultList {
		if row.Name != "" && row.Value != "" {
			attrs[row.Name] = row.Value
		}
	}
	return attrs, nil
}
