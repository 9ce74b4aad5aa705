package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/naramarket/crawler/internal/crawl"
)

// newCrawlCmd creates the 'crawl' subcommand. It runs one crawl
// invocation in-process and prints the resulting checkpoint as JSON on
// stdout, so shell pipelines can drive resumption.
func newCrawlCmd() *cobra.Command {
	var req crawl.CrawlRequest

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl invocation and print its checkpoint",
		Long: `Runs a windowed crawl for one product category. The crawl walks
backward from the anchor date (default: today) in fixed windows and
writes flattened records to a CSV file. The checkpoint printed on exit
says whether coverage is complete and, if not, which anchor date and
day count to pass to the next invocation.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawlCommand(cmd, req)
		},
	}

	cmd.Flags().StringVar(&req.Category, "category", "", "product category name (required)")
	cmd.Flags().IntVar(&req.TotalDays, "total-days", 30, "total calendar days to cover")
	cmd.Flags().IntVar(&req.WindowDays, "window-days", 7, "days per window")
	cmd.Flags().StringVar(&req.AnchorEndDate, "anchor-end-date", "", "exclusive anchor date YYYYMMDD (default today)")
	cmd.Flags().IntVar(&req.MaxWindowsPerCall, "max-windows", 0, "stop after this many windows (0 = no cap)")
	cmd.Flags().IntVar(&req.MaxRuntimeSec, "max-runtime-sec", 0, "stop starting new windows after this many seconds (0 = no cap)")
	cmd.Flags().BoolVar(&req.Append, "append", false, "append to an existing output file")
	cmd.Flags().BoolVar(&req.FailOnNewColumns, "fail-on-new-columns", false, "abort when a record introduces a column absent from the committed header")
	cmd.Flags().BoolVar(&req.ExplodeAttributes, "explode-attributes", false, "spread detail attributes into one column each instead of a JSON blob")
	cmd.Flags().StringVar(&req.OutputPath, "output", "", "output CSV path (default derived from category)")

	if err := cmd.MarkFlagRequired("category"); err != nil {
		panic(err)
	}

	return cmd
}

func runCrawlCommand(cmd *cobra.Command, req crawl.CrawlRequest) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	cp, runErr := appInstance.RunCrawl(cmd.Context(), req)

	// The checkpoint is printed even on failure; it is always well-formed
	// and tells the operator where to resume.
	out, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if runErr != nil {
		return fmt.Errorf("crawl %s: %w", req.Category, runErr)
	}
	if cp.Incomplete {
		logger.Info("coverage incomplete, resume with printed checkpoint",
			zap.String("next_anchor_end_date", cp.NextAnchorEndDate),
			zap.Int("remaining_days", cp.RemainingDays),
		)
	} else {
		logger.Info("coverage complete",
			zap.Int("records_written", cp.RecordsWritten),
			zap.Int("windows_processed", cp.WindowsProcessed),
		)
	}
	return nil
}
