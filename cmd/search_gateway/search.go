package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gcbaptista/go-search-gateway/services"
)

type searchOptions struct {
	indices  []string
	query    string
	limit    int
	siteID   int
	language string
	debug    bool
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run one query through the pipeline and print the response",
		Long: `Run one query through the full pipeline and print the JSON response.

Examples:
  search-gateway search --config gateway.yaml --index products -q "laptop"
  search-gateway search --config gateway.yaml --index products --index docs -q "help" --limit 5 --site 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(opts.indices) == 0 {
				return fmt.Errorf("at least one --index is required")
			}
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(settings, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.search.Search(cmd.Context(), services.SearchContext{
				IndexHandles: opts.indices,
				Query:        opts.query,
				SiteID:       opts.siteID,
				Language:     opts.language,
				Options:      services.SearchOptions{Limit: opts.limit},
			})
			if err != nil {
				return err
			}
			if !opts.debug {
				resp.Meta = resp.Meta.Public()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.indices, "index", "i", nil, "Index handle to search (repeatable)")
	cmd.Flags().StringVarP(&opts.query, "query", "q", "", "Query text")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of hits")
	cmd.Flags().IntVar(&opts.siteID, "site", 0, "Site ID (0 uses the default site)")
	cmd.Flags().StringVar(&opts.language, "language", "", "Language override")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Include rule and backend diagnostics")
	return cmd
}
