package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/naramarket/crawler/internal/crawl"
)

func TestDecodeListPageItemsArray(t *testing.T) {
	body := []byte(`{"response":{"body":{
		"items":[
			{"prdctIdntNo":"P1","prdctNm":"desktop","prdctUprc":1500000},
			{"prdctIdntNo":"P2","prdctNm":"laptop"}
		],
		"totalCount":42}}}`)

	page, err := decodeListPage(body)
	require.NoError(t, err)
	require.Equal(t, 42, page.TotalCount)
	require.Len(t, page.Items, 2)
	require.Equal(t, "P1", page.Items[0].ID)
	require.Equal(t, "desktop", page.Items[0].Fields["prdctNm"])
	require.Equal(t, "1500000", page.Items[0].Fields["prdctUprc"], "numeric fields are stringified")
}

func TestDecodeListPageWrappedItem(t *testing.T) {
	body := []byte(`{"response":{"body":{
		"items":{"item":{"prdctIdntNo":"P1"}},
		"totalCount":"1"}}}`)

	page, err := decodeListPage(body)
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalCount)
	require.Len(t, page.Items, 1)
	require.Equal(t, "P1", page.Items[0].ID)
}

func TestDecodeListPageBareObject(t *testing.T) {
	body := []byte(`{"response":{"body":{"items":{"prdctIdntNo":"P9"},"totalCount":1}}}`)

	page, err := decodeListPage(body)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "P9", page.Items[0].ID)
}

func TestDecodeListPageEmptyItems(t *testing.T) {
	for _, body := range []string{
		`{"response":{"body":{"items":null,"totalCount":0}}}`,
		`{"response":{"body":{"items":"","totalCount":0}}}`,
		`{"response":{"body":{"totalCount":0}}}`,
	} {
		page, err := decodeListPage([]byte(body))
		require.NoError(t, err, body)
		require.Empty(t, page.Items, body)
	}
}

func TestDecodeListPageMalformedBodyIsTransient(t *testing.T) {
	_, err := decodeListPage([]byte(`<html>gateway overloaded</html>`))
	require.True(t, crawl.IsTransient(err), "HTML error pages must be retried")
}

func TestDecodeDetail(t *testing.T) {
	body := []byte(`{"resultList":[
		{"prdctAtrbNm":"cpu","prdctAtrbVl":"8-core"},
		{"prdctAtrbNm":"","prdctAtrbVl":"dropped"},
		{"prdctAtrbNm":"empty","prdctAtrbVl":""}
	]}`)

	attrs, err := decodeDetail(body)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"cpu": "8-core"}, attrs)
}

func TestDecodeDetailMalformed(t *testing.T) {
	_, err := decodeDetail([]byte(`not json`))
	require.True(t, crawl.IsTransient(err))
}
