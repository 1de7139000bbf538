package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/Sternrassler/gmgn-scan/pkg/scan"
	"github.com/spf13/cobra"
)

// parseTime accepts unix seconds or an RFC 3339 timestamp.
func parseTime(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: want unix seconds or RFC 3339", s)
	}
	return t.Unix(), nil
}

func newTradesCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "trades ADDRESS",
		Short: "List the trades of a token inside a time window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseTime(start)
			if err != nil {
				return err
			}
			to := time.Now().Unix()
			if end != "" {
				if to, err = parseTime(end); err != nil {
					return err
				}
			}
			return runScan(cmd, func(ctx context.Context, s *scan.Scanner, chain gmgn.Chain, opts scan.Options) (any, error) {
				return s.TradesInWindow(ctx, chain, args[0], from, to, opts)
			})
		},
	}
	addScanFlags(cmd)
	cmd.Flags().StringVar(&start, "start", "", "Window start, unix seconds or RFC 3339 (required)")
	cmd.Flags().StringVar(&end, "end", "", "Window end, unix seconds or RFC 3339 (default now)")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}
