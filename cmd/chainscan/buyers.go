package main

import (
	"context"
	"encoding/json"

	"github.com/Sternrassler/gmgn-scan/pkg/gmgn"
	"github.com/Sternrassler/gmgn-scan/pkg/scan"
	"github.com/spf13/cobra"
)

// scanFunc runs one scan and returns the value printed as JSON.
type scanFunc func(ctx context.Context, s *scan.Scanner, chain gmgn.Chain, opts scan.Options) (any, error)

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().String("chain", string(gmgn.ChainSol), "Chain to scan (sol, eth, bsc)")
	cmd.Flags().Int("workers", 0, "Concurrent page or resource fetches (0 uses scan.workers)")
	cmd.Flags().Int("attempts", 0, "Attempts per request (0 uses executor.max_attempts)")
	cmd.Flags().Duration("timeout", 0, "Per-attempt timeout (0 uses executor.timeout)")
	cmd.Flags().Duration("delay", 0, "Delay between attempts (0 uses executor.retry_delay)")
	cmd.Flags().Int("max-pages", 0, "Stop trade history discovery after this many pages (0 uses scan.max_pages)")
}

// runScan wires the app, runs fn and prints its result to stdout. Logs go
// to stderr so the output stays valid JSON.
func runScan(cmd *cobra.Command, fn scanFunc) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	raw, _ := cmd.Flags().GetString("chain")
	chain, err := gmgn.ParseChain(raw)
	if err != nil {
		return err
	}
	workers, _ := cmd.Flags().GetInt("workers")
	attempts, _ := cmd.Flags().GetInt("attempts")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	delay, _ := cmd.Flags().GetDuration("delay")
	maxPages, _ := cmd.Flags().GetInt("max-pages")

	a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := fn(cmd.Context(), a.scanner, chain, scan.Options{Workers: workers, Attempts: attempts, Timeout: timeout, Delay: delay, MaxPages: maxPages})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newBuyersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buyers ADDRESS[,ADDRESS...]...",
		Short: "List the distinct buyers of each token",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, func(ctx context.Context, s *scan.Scanner, chain gmgn.Chain, opts scan.Options) (any, error) {
				return s.Buyers(ctx, chain, scan.Addresses(args...), opts)
			})
		},
	}
	addScanFlags(cmd)
	return cmd
}

func newEarlyBuyersCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "early-buyers ADDRESS[,ADDRESS...]...",
		Short: "List the earliest non-creator buyers of each token",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, func(ctx context.Context, s *scan.Scanner, chain gmgn.Chain, opts scan.Options) (any, error) {
				return s.EarlyBuyers(ctx, chain, scan.Addresses(args...), limit, opts)
			})
		},
	}
	addScanFlags(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "Buyers per token (0 uses scan.early_buyers_limit)")
	return cmd
}

func newContractsCmd() *cobra.Command {
	var (
		kind    string
		site    string
		fetches int
	)
	cmd := &cobra.Command{
		Use:   "contracts",
		Short: "Collect token contracts from a rank list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, func(ctx context.Context, s *scan.Scanner, _ gmgn.Chain, opts scan.Options) (any, error) {
				return s.TokenContracts(ctx, gmgn.RankKind(kind), site, fetches, opts)
			})
		},
	}
	addScanFlags(cmd)
	cmd.Flags().StringVar(&kind, "type", string(gmgn.RankNew), "Rank list (new, completing, soaring, bonded)")
	cmd.Flags().StringVar(&site, "site", gmgn.SitePumpFun, "Launch site (Pump.Fun, Moonshot)")
	cmd.Flags().IntVar(&fetches, "fetches", 1, "Number of rank fetches to union")
	return cmd
}

func newCheckWalletsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-wallets WALLET[,WALLET...]...",
		Short: "Report raw 7d and 30d stats and PnL distributions of wallets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, func(ctx context.Context, s *scan.Scanner, chain gmgn.Chain, opts scan.Options) (any, error) {
				return s.CheckWallets(ctx, chain, scan.Addresses(args...), opts)
			})
		},
	}
	addScanFlags(cmd)
	return cmd
}

func newBundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle ADDRESS",
		Short: "Detect bundled team buys of a sol token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, func(ctx context.Context, s *scan.Scanner, _ gmgn.Chain, opts scan.Options) (any, error) {
				return s.AnalyzeBundle(ctx, args[0], opts)
			})
		},
	}
	addScanFlags(cmd)
	return cmd
}
