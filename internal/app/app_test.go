package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/naramarket/crawler/internal/config"
	"github.com/naramarket/crawler/internal/crawl"
	"github.com/naramarket/crawler/internal/runlog"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.API.ServiceKey = "test-key"
	cfg.API.MaxRetries = 1
	cfg.API.PageSize = 100
	cfg.API.MaxPages = 999
	cfg.Crawl.Concurrency = 1
	cfg.Crawl.BatchSize = 10
	cfg.Crawl.OutputDir = "data"
	return cfg
}

func TestDefaultOutputPath(t *testing.T) {
	a := &App{cfg: testConfig()}

	require.Equal(t, filepath.Join("data", "desktop_computers.csv"), a.defaultOutputPath("데스크톱컴퓨터"))
	require.Equal(t, filepath.Join("data", "my_category.csv"), a.defaultOutputPath("My Category"))
}

func TestNewFallsBackToMemoryRunLog(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	require.IsType(t, &runlog.MemoryStore{}, a.Runs())
}

func TestRunCrawlRequiresServiceKey(t *testing.T) {
	cfg := testConfig()
	cfg.API.ServiceKey = ""
	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.RunCrawl(context.Background(), crawl.CrawlRequest{Category: "운영체제", TotalDays: 1, WindowDays: 1})
	var cfgErr *crawl.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	require.Equal(t, "api.service_key", cfgErr.Field)

	store, ok := a.Runs().(*runlog.MemoryStore)
	require.True(t, ok)
	require.Empty(t, store.Runs(), "rejected requests are not audit-logged")
}

func TestRunCrawlRejectedRequestLeavesOutputIntact(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	out := filepath.Join(t.TempDir(), "existing.csv")
	seed := []byte("a,b\n1,2\n")
	require.NoError(t, os.WriteFile(out, seed, 0o644))

	invalid := []crawl.CrawlRequest{
		{Category: "운영체제", TotalDays: 0, WindowDays: 1, OutputPath: out},
		{Category: "운영체제", TotalDays: 5, WindowDays: 1, AnchorEndDate: "not-a-date", OutputPath: out},
	}
	for _, req := range invalid {
		_, err := a.RunCrawl(context.Background(), req)
		var cfgErr *crawl.ConfigError
		require.True(t, errors.As(err, &cfgErr))

		got, readErr := os.ReadFile(out)
		require.NoError(t, readErr)
		require.Equal(t, seed, got, "field %s: rejected request must not touch the output file", cfgErr.Field)
	}
}

func TestRunCrawlEndToEnd(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder(http.MethodGet, `=~^http://apis\.data\.go\.kr/`,
		httpmock.NewStringResponder(http.StatusOK, `{"response":{"body":{
			"items":[{"prdctIdntNo":"P1","prdctNm":"desktop"}],
			"totalCount":1}}}`))
	httpmock.RegisterResponder(http.MethodPost, `=~^https://shop\.g2b\.go\.kr/`,
		httpmock.NewStringResponder(http.StatusOK,
			`{"resultList":[{"prdctAtrbNm":"cpu","prdctAtrbVl":"8-core"}]}`))

	a, err := New(context.Background(), testConfig(), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	out := filepath.Join(t.TempDir(), "desktop.csv")
	cp, err := a.RunCrawl(context.Background(), crawl.CrawlRequest{
		Category:      "데스크톱컴퓨터",
		TotalDays:     2,
		WindowDays:    2,
		AnchorEndDate: "20250710",
		OutputPath:    out,
	})
	require.NoError(t, err)

	require.False(t, cp.Incomplete)
	require.Equal(t, 1, cp.WindowsProcessed)
	require.Equal(t, 1, cp.RecordsWritten)
	require.FileExists(t, out)

	store, ok := a.Runs().(*runlog.MemoryStore)
	require.True(t, ok)
	runs := store.Runs()
	require.Len(t, runs, 1)
	require.Equal(t, "데스크톱컴퓨터", runs[0].Category)
	require.Equal(t, out, runs[0].OutputPath)
	require.NotEmpty(t, runs[0].ID)
	require.Empty(t, runs[0].ErrorText)
}
