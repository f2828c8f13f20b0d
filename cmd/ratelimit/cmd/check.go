package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ryhazerus/ratelimit"
)

var (
	checkCount  int
	checkOutput string
)

var checkCmd = &cobra.Command{
	Use:   "check <identifier>",
	Short: "Run rate limit decisions for an identifier",
	Long: `Run --count rate limit decisions for identifier against the configured
store and print each one. Useful to inspect a quota shared with running
services.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkCount < 1 {
			return fmt.Errorf("--count must be at least 1, got %d", checkCount)
		}
		switch checkOutput {
		case "table", "json", "yaml":
		default:
			return fmt.Errorf("--output must be one of: table json yaml, got %q", checkOutput)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(os.Stderr, cfg)

		ctx := cmd.Context()
		s, closeStore, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		limiter, err := newLimiter(cfg, s, logger)
		if err != nil {
			return err
		}

		results := make([]checkResult, 0, checkCount)
		for i := 0; i < checkCount; i++ {
			d, err := limiter.Limit(ctx, args[0])
			if err != nil {
				return err
			}
			results = append(results, newCheckResult(args[0], d))
		}
		return writeResults(cmd.OutOrStdout(), checkOutput, results)
	},
}

func init() {
	checkCmd.Flags().IntVarP(&checkCount, "count", "n", 1, "number of decisions to run")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(checkCmd)
}

type checkResult struct {
	Identifier string    `json:"identifier" yaml:"identifier"`
	Allowed    bool      `json:"allowed" yaml:"allowed"`
	Limit      uint64    `json:"limit" yaml:"limit"`
	Remaining  uint64    `json:"remaining" yaml:"remaining"`
	Reset      time.Time `json:"reset" yaml:"reset"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func newCheckResult(identifier string, d ratelimit.Decision) checkResult {
	r := checkResult{
		Identifier: identifier,
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		Remaining:  d.Remaining,
		Reset:      d.Reset.UTC(),
	}
	if d.Reason != ratelimit.ReasonNone {
		r.Reason = d.Reason.String()
	}
	return r
}

func writeResults(w io.Writer, format string, results []checkResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(results)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tIDENTIFIER\tALLOWED\tREMAINING\tLIMIT\tRESET\tREASON")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%v\t%d\t%d\t%s\t%s\n",
			i+1, r.Identifier, r.Allowed, r.Remaining, r.Limit, r.Reset.Format(time.RFC3339Nano), r.Reason)
	}
	return tw.Flush()
}
