package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/internal/pipeline"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search and parse articles for a query",
	Long:  "Runs one search, serves cached articles, extracts the rest until --min-parsed articles parse or --max-attempts is reached, and prints the result.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		output, _ := cmd.Flags().GetString("output")
		if output != "json" && output != "yaml" {
			return eris.Errorf("unsupported output format %q (want json or yaml)", output)
		}

		env, err := initSearch(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		req, err := searchRequestFromFlags(cmd, strings.Join(args, " "))
		if err != nil {
			return err
		}

		result := env.Orchestrator.Run(ctx, withParseDefaults(req, cfg.Parse))
		zap.L().Info("search complete",
			zap.String("query", result.Query),
			zap.Int("success", len(result.Success)),
			zap.Int("failed", len(result.Failed)),
			zap.Int("attempts", result.Attempts),
		)

		return writeOutput(os.Stdout, output, result)
	},
}

func searchRequestFromFlags(cmd *cobra.Command, query string) (pipeline.Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return pipeline.Request{}, eris.New("query is required")
	}

	minParsed, _ := cmd.Flags().GetInt("min-parsed")
	maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
	maxResults, _ := cmd.Flags().GetInt("max-results")
	language, _ := cmd.Flags().GetString("language")
	categories, _ := cmd.Flags().GetString("categories")
	timeRange, _ := cmd.Flags().GetString("time-range")
	engines, _ := cmd.Flags().GetString("engines")
	safeSearch, _ := cmd.Flags().GetInt("safesearch")

	if safeSearch < 0 || safeSearch > 2 {
		return pipeline.Request{}, eris.Errorf("safesearch must be 0, 1 or 2, got %d", safeSearch)
	}

	return pipeline.Request{
		Query:       query,
		MinParsed:   minParsed,
		MaxAttempts: maxAttempts,
		MaxResults:  maxResults,
		Params: model.SearchParams{
			Language:   language,
			Categories: categories,
			TimeRange:  timeRange,
			Engines:    engines,
			SafeSearch: safeSearch,
		},
	}, nil
}

// addSearchFlags registers the search flags on c.
func addSearchFlags(c *cobra.Command) {
	c.Flags().Int("min-parsed", 0, "stop after this many articles parse (default from config)")
	c.Flags().Int("max-attempts", 0, "maximum extraction attempts, cache hits included (default from config)")
	c.Flags().Int("max-results", 0, "maximum search results to consider (capped at max-attempts)")
	c.Flags().String("language", "", "search language, e.g. zh-TW")
	c.Flags().String("categories", model.DefaultCategories, "SearXNG categories")
	c.Flags().String("time-range", "", "day, week, month or year")
	c.Flags().String("engines", "", "comma-separated engine list")
	c.Flags().Int("safesearch", 0, "safe search level 0-2")
	c.Flags().StringP("output", "o", "json", "output format: json or yaml")
}

func init() {
	addSearchFlags(searchCmd)
	rootCmd.AddCommand(searchCmd)
}
