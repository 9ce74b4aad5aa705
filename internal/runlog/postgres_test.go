package runlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/naramarket/crawler/internal/crawl"
)

func TestPostgresStoreRecordRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "crawl_runs")
	require.NoError(t, err)

	started := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	run := Run{
		ID:         "0198c0de-run",
		Category:   "데스크톱컴퓨터",
		OutputPath: "data/desktop_computers.csv",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Checkpoint: crawl.Checkpoint{
			Incomplete:        true,
			NextAnchorEndDate: "20250706",
			RemainingDays:     1,
			WindowsProcessed:  2,
			RecordsWritten:    240,
			FailedItems:       3,
			ElapsedSec:        90,
			AppendMode:        true,
		},
		ErrorText: "",
	}

	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(
			run.ID,
			run.Category,
			run.OutputPath,
			run.StartedAt,
			run.FinishedAt,
			true,
			"20250706",
			1,
			2,
			240,
			3,
			90.0,
			true,
			"",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRecordRunRequiresID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "")
	require.NoError(t, err)

	require.Error(t, store.RecordRun(context.Background(), Run{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRecordRunPropagatesFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "crawl_runs")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO crawl_runs").
		WillReturnError(errors.New("connection reset"))

	err = store.RecordRun(context.Background(), Run{ID: "run-1"})
	require.ErrorContains(t, err, "insert run")
}

func TestNewPostgresStoreWithPoolValidatesTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStoreWithPool(mock, "crawl_runs; DROP TABLE crawl_runs")
	require.Error(t, err)

	_, err = NewPostgresStoreWithPool(nil, "crawl_runs")
	require.Error(t, err)
}
