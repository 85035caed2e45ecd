// Command umbra-scan fetches stealth payment announcements for a block range
// and scans them against a viewing/spending key pair.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	umbra "github.com/doublespending/umbra-protocol-performance"
	"github.com/doublespending/umbra-protocol-performance/internal/config"
	"github.com/doublespending/umbra-protocol-performance/source"
)

var (
	flagViewingKey  string
	flagSpendingPub string
	flagStartBlock  uint64
	flagEndBlock    uint64
	flagAll         bool
)

var rootCmd = &cobra.Command{
	Use:   "umbra-scan",
	Short: "Scan on-chain stealth payment announcements for a viewing key",
	Long: `Fetch announcements for a block range and report which ones belong to the
holder of the given viewing key, together with the recovered one-time
spending address for each match.

Chain settings come from config.yaml or UMBRA_* environment variables, e.g.:

  UMBRA_CHAIN_RPC_URL=https://eth.example.com \
  UMBRA_CHAIN_CONTRACT_ADDRESS=0x... \
  umbra-scan --viewing-key 0x... --spending-pub 0x... --start 19000000 --end 19010000`,
	RunE: runScan,
}

func init() {
	rootCmd.Flags().StringVar(&flagViewingKey, "viewing-key", "", "0x-prefixed viewing private key (required)")
	rootCmd.Flags().StringVar(&flagSpendingPub, "spending-pub", "", "0x-prefixed spending public key (required)")
	rootCmd.Flags().Uint64Var(&flagStartBlock, "start", 0, "first block to scan")
	rootCmd.Flags().Uint64Var(&flagEndBlock, "end", 0, "last block to scan (required)")
	rootCmd.Flags().BoolVar(&flagAll, "all", false, "print every scan result, not just matches")
	rootCmd.MarkFlagRequired("viewing-key")
	rootCmd.MarkFlagRequired("spending-pub")
	rootCmd.MarkFlagRequired("end")
}

func runScan(cmd *cobra.Command, args []string) error {
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := source.New(ctx, source.Config{
		Chain: umbra.ChainConfig{
			ChainID:         cfg.Chain.ChainID,
			ContractAddress: cfg.Chain.ContractAddress,
			StartBlock:      cfg.Chain.StartBlock,
			RPCURL:          cfg.Chain.RPCURL,
			IndexerEndpoint: cfg.Chain.IndexerEndpoint,
		},
		PageSize:       cfg.Source.PageSize,
		BlocksPerQuery: cfg.Source.BlocksPerQuery,
		Concurrency:    cfg.Source.Concurrency,
		RequestTimeout: cfg.Source.RequestTimeout,
		MaxRetries:     cfg.Source.MaxRetries,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build announcement source: %w", err)
	}

	logger.Info("fetching announcements",
		slog.Uint64("start", flagStartBlock),
		slog.Uint64("end", flagEndBlock),
	)
	anns, err := src.Fetch(ctx, flagStartBlock, flagEndBlock)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}
	logger.Info("fetched announcements", slog.Int("count", len(anns)))

	scanner, err := umbra.NewScanner(umbra.ScannerConfig{
		ViewingPrivateKey: flagViewingKey,
		SpendingPublicKey: flagSpendingPub,
		Workers:           cfg.Scan.Workers,
		DisableViewTags:   cfg.Scan.DisableViewTags,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	results, err := scanner.Scan(ctx, anns)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	matches := 0
	for _, res := range results {
		if res.IsMatch {
			matches++
		}
		if !res.IsMatch && !flagAll {
			continue
		}
		out := map[string]interface{}{
			"block":    res.Announcement.BlockNumber,
			"logIndex": res.Announcement.LogIndex,
			"match":    res.IsMatch,
		}
		if res.DerivedAddress != "" {
			out["derivedAddress"] = res.DerivedAddress
		}
		if res.Announcement.Token != "" {
			out["token"] = res.Announcement.Token
		}
		if res.Announcement.Amount != nil {
			out["amount"] = res.Announcement.Amount.String()
		}
		if res.Diagnostic != nil {
			out["diagnostic"] = res.Diagnostic.Error()
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	logger.Info("scan finished",
		slog.Int("announcements", len(results)),
		slog.Int("matches", matches),
	)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
