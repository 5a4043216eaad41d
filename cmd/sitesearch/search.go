package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/sitesearch/internal/repl"
	"github.com/IshaanNene/sitesearch/internal/search"
	"github.com/IshaanNene/sitesearch/pkg/sitesearch"
)

var (
	searchMode   string
	searchFields []string
	searchLimit  int
	jsonOutput   bool
)

// searchCmd creates the "search" subcommand.
func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search the index",
		Long: `Search the index for the given query. Terms may be prefixed with title:
or content: to restrict them to one field. If the index is empty and a
seed URL is configured, the site is crawled first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	cmd.Flags().StringVar(&searchMode, "mode", "", "ranked or boolean (default from search.mode)")
	cmd.Flags().StringSliceVar(&searchFields, "fields", nil, "fields for unprefixed terms (title,content)")
	cmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the response as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	eng, err := sitesearch.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if _, err := eng.EnsureIndex(cmd.Context()); err != nil {
		return err
	}

	opts := eng.DefaultOptions()
	if searchMode != "" {
		if opts.Mode, err = search.ParseMode(searchMode); err != nil {
			return err
		}
	}
	if len(searchFields) > 0 {
		if opts.Fields, err = search.CanonicalFields(searchFields); err != nil {
			return err
		}
	}
	if searchLimit > 0 {
		opts.Limit = searchLimit
	}

	resp := eng.Lookup(cmd.Context(), strings.Join(args, " "), opts)
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	repl.NewPrinter(cfg.Search, isTerminal(os.Stdout)).Print(cmd.OutOrStdout(), resp)
	return nil
}

// shellCmd creates the "shell" subcommand.
func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive search shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			eng, err := sitesearch.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx, stop := signalContext()
			defer stop()

			if _, err := eng.EnsureIndex(ctx); err != nil {
				return err
			}
			sh := repl.New(eng, cfg, os.Stdin, cmd.OutOrStdout(), isTerminal(os.Stdout), logger)
			return sh.Run(ctx)
		},
	}
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
