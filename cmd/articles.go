package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/search-parser/internal/model"
	"github.com/sells-group/search-parser/internal/store"
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Inspect stored articles",
}

// -- articles list --

var articlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List parsed or failed articles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		table, _ := cmd.Flags().GetString("table")
		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		output, _ := cmd.Flags().GetString("output")

		if _, err := store.ResolveTable(table); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		recs, err := st.ListArticles(ctx, store.ArticleFilter{
			Table:  table,
			Query:  query,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return eris.Wrap(err, "articles list")
		}

		if output != "table" {
			return writeOutput(os.Stdout, output, recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No articles found.")
			return nil
		}
		formatArticlesList(os.Stdout, recs)
		return nil
	},
}

// formatArticlesList writes a table of articles to w.
func formatArticlesList(w io.Writer, recs []model.ParsedRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSERTED\tQUERY\tENGINE\tCHARS\tTITLE\tURL\tERROR")
	for _, r := range recs {
		inserted := "-"
		if !r.InsertedAt.IsZero() {
			inserted = r.InsertedAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			inserted,
			truncate(r.Query, 24),
			r.Engine,
			utf8.RuneCountInString(r.Text),
			truncate(r.Title, 40),
			r.URL,
			truncate(r.Error, 40),
		)
	}
	tw.Flush() //nolint:errcheck
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

func init() {
	articlesListCmd.Flags().String("table", "parsed", "parsed or failed")
	articlesListCmd.Flags().String("query", "", "filter by originating query (substring)")
	articlesListCmd.Flags().Int("limit", 50, "maximum rows")
	articlesListCmd.Flags().Int("offset", 0, "rows to skip")
	articlesListCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	articlesCmd.AddCommand(articlesListCmd)
	rootCmd.AddCommand(articlesCmd)
}
