package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/sitesearch/internal/engine"
	"github.com/IshaanNene/sitesearch/internal/types"
	"github.com/IshaanNene/sitesearch/pkg/sitesearch"
)

var (
	rebuild     bool
	maxPages    int
	maxDuration time.Duration
	concurrency int
	parserType  string
	quiet       bool
)

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a site into the index",
		Long: `Crawl the site rooted at the seed URL (or crawl.seed_url) and index every
HTML page on the same host. An existing index is left alone unless
--rebuild is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawl,
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "discard the existing index first")
	cmd.Flags().IntVarP(&maxPages, "max-pages", "m", 0, "stop after this many indexed pages (0 = unlimited)")
	cmd.Flags().DurationVar(&maxDuration, "max-duration", 0, "stop after this long (0 = unlimited)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "number of fetch workers")
	cmd.Flags().StringVar(&parserType, "parser", "", "page parser: html or xpath")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress spinner")

	return cmd
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-pages") {
		cfg.Crawl.MaxPages = maxPages
	}
	if cmd.Flags().Changed("max-duration") {
		cfg.Crawl.MaxDuration = maxDuration
	}
	if concurrency > 0 {
		cfg.Crawl.Concurrency = concurrency
	}
	if parserType != "" {
		cfg.Parser.Type = parserType
	}
	if len(args) == 1 {
		cfg.Crawl.SeedURL = args[0]
	}
	if cfg.Crawl.SeedURL == "" {
		return errors.New("no seed URL: pass one as an argument or set crawl.seed_url")
	}

	logger := setupLogger(cfg)
	eng, err := sitesearch.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if !quiet {
		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Crawling"),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		eng.OnProgress(func(p engine.Progress) {
			bar.Describe(fmt.Sprintf("Crawling (%d queued)", p.Queued))
			bar.Set(p.Indexed)
		})
	}

	// First signal stops gracefully and commits what was indexed.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if sig, ok := <-sigCh; ok {
			logger.Info("received signal, stopping crawl...", "signal", sig)
			eng.StopCrawl()
		}
	}()

	ctx := cmd.Context()
	var summary *engine.Summary
	if rebuild {
		summary, err = eng.Rebuild(ctx, cfg.Crawl.SeedURL)
	} else {
		summary, err = eng.Crawl(ctx, cfg.Crawl.SeedURL)
	}
	if errors.Is(err, types.ErrIndexNotEmpty) {
		return fmt.Errorf("%w; pass --rebuild to replace it", err)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nCrawl complete in %s (%s)\n", summary.Duration.Round(time.Millisecond), summary.StopReason)
	fmt.Fprintf(out, "   Indexed:   %d pages\n", summary.Indexed)
	fmt.Fprintf(out, "   Visited:   %d URLs\n", len(summary.Visited))
	fmt.Fprintf(out, "   Errors:    %d fetch, %d parse, %d skipped\n", summary.FetchErrors, summary.ParseErrors, summary.Skipped)
	fmt.Fprintf(out, "   Index:     %s (%s)\n", cfg.Index.Path, cfg.Index.Backend)
	if cfg.Storage.Type != "none" && cfg.Storage.Type != "" {
		fmt.Fprintf(out, "   Export:    %s\n", cfg.Storage.Type)
	}
	return nil
}
