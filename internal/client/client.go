// Package client talks to the Nara Market listing API and the G2B
// detail API. It is the only package that touches the network: every
// call goes through the shared rate limiter and the retry policy.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/naramarket/crawler/internal/crawl"
	"github.com/naramarket/crawler/internal/metrics"
	"github.com/naramarket/crawler/internal/ratelimit"
)

// Production endpoints of the Korean public procurement services.
const (
	DefaultListURL   = "http://apis.data.go.kr/1230000/at/ShoppingMallPrdctInfoService/getShoppingMallPrdctInfoList"
	DefaultDetailURL = "https://shop.g2b.go.kr/gm/gms/gmsf/GdsDtlInfo/selectPdctAtrbInfo.do"

	defaultListTimeout   = 30 * time.Second
	defaultDetailTimeout = 15 * time.Second
)

// IDField is the listing column that identifies a product.
const IDField = "prdctIdntNo"

// g2bHeaders make the detail endpoint treat us like the shop frontend;
// it rejects plain API clients.
var g2bHeaders = map[string]string{
	"Accept":           "application/json",
	"Content-Type":     "application/json;charset=UTF-8",
	"Referer":          "https://shop.g2b.go.kr/",
	"Origin":           "https://shop.g2b.go.kr",
	"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
	"X-Requested-With": "XMLHttpRequest",
}

// Config holds everything the client needs: credential, endpoints,
// per-endpoint timeouts, the retry policy, and the shared limiter.
type Config struct {
	ServiceKey    string
	ListURL       string
	DetailURL     string
	ListTimeout   time.Duration
	DetailTimeout time.Duration
	Retry         crawl.RetryPolicy
	Limiter       *ratelimit.Limiter
	Logger        *zap.Logger
}

// Client implements crawl.ListClient and crawl.DetailClient.
type Client struct {
	cfg        Config
	listHTTP   *http.Client
	detailHTTP *http.Client
	logger     *zap.Logger
}

// New builds a Client, filling zero config values with production
// defaults. The list endpoint tolerates a longer timeout because its
// payloads are an order of magnitude larger than detail responses.
func New(cfg Config) *Client {
	if cfg.ListURL == "" {
		cfg.ListURL = DefaultListURL
	}
	if cfg.DetailURL == "" {
		cfg.DetailURL = DefaultDetailURL
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = defaultListTimeout
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = defaultDetailTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = crawl.DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		listHTTP:   &http.Client{Timeout: cfg.ListTimeout},
		detailHTTP: &http.Client{Timeout: cfg.DetailTimeout},
		logger:     cfg.Logger,
	}
}

// ListPage fetches one page of a window's listing.
func (c *Client) ListPage(ctx context.Context, category string, w crawl.Window, pageNo, numRows int) (crawl.ListPage, error) {
	if err := c.wait(ctx); err != nil {
		return crawl.ListPage{}, err
	}
	var page crawl.ListPage
	err := c.cfg.Retry.Do(ctx, func() error {
		p, err := c.listOnce(ctx, category, w, pageNo, numRows)
		if err != nil {
			c.logger.Warn("list call failed",
				zap.String("category", category),
				zap.Int("page", pageNo),
				zap.Error(err),
			)
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return crawl.ListPage{}, err
	}
	metrics.ObserveListPage(category)
	return page, nil
}

// DetailAttributes fetches the attribute map for one listed item.
func (c *Client) DetailAttributes(ctx context.Context, stub crawl.ItemStub) (map[string]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	var attrs map[string]string
	err := c.cfg.Retry.Do(ctx, func() error {
		a, err := c.detailOnce(ctx, stub)
		if err != nil {
			c.logger.Warn("detail call failed",
				zap.String("item_id", stub.ID),
				zap.Error(err),
			)
			return err
		}
		attrs = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attrs, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.cfg.Limiter == nil {
		return nil
	}
	return c.cfg.Limiter.Wait(ctx)
}

func (c *Client) listOnce(ctx context.Context, category string, w crawl.Window, pageNo, numRows int) (crawl.ListPage, error) {
	params := url.Values{}
	params.Set("serviceKey", c.cfg.ServiceKey)
	params.Set("pageNo", strconv.Itoa(pageNo))
	params.Set("numOfRows", strconv.Itoa(numRows))
	params.Set("type", "json")
	params.Set("inqryDiv", "1")
	params.Set("inqryBgnDate", w.Start.Format(crawl.DateFormat))
	// The API treats both bounds as inclusive; our window end is exclusive.
	params.Set("inqryEndDate", w.End.AddDate(0, 0, -1).Format(crawl.DateFormat))
	params.Set("dtilPrdctClsfcNoNm", category)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ListURL+"?"+params.Encode(), nil)
	if err != nil {
		return crawl.ListPage{}, fmt.Errorf("build list request: %w", err)
	}

	resp, err := c.listHTTP.Do(req)
	if err != nil {
		return crawl.ListPage{}, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return crawl.ListPage{}, classifyStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return crawl.ListPage{}, classifyTransport(err)
	}
	return decodeListPage(body)
}

func (c *Client) detailOnce(ctx context.Context, stub crawl.ItemStub) (map[string]string, error) {
	payload, err := json.Marshal(detailPayload(stub))
	if err != nil {
		return nil, fmt.Errorf("marshal detail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.DetailURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build detail request: %w", err)
	}
	for k, v := range g2bHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.detailHTTP.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err)
	}
	return decodeDetail(body)
}

// detailPayload carries the identifying listing fields the G2B endpoint
// expects. Only fields present on the stub are sent.
func detailPayload(stub crawl.ItemStub) map[string]string {
	payload := make(map[string]string, 3)
	for _, key := range []string{IDField, "prdctClsfcNo", "dtilPrdctClsfcNo"} {
		if v, ok := stub.Fields[key]; ok && v != "" {
			payload[key] = v
		}
	}
	if _, ok := payload[IDField]; !ok && stub.ID != "" {
		payload[IDField] = stub.ID
	}
	return payload
}
