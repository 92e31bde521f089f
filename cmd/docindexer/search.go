package docindexer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/finlex/docindexer/pkg/search"
	"github.com/finlex/docindexer/pkg/service"
)

var (
	searchTenant string
	searchLimit  int
	searchMethod string
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if searchTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		svc, err := service.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = svc.Close(ctx)
		}()

		req := search.Request{
			Query:  strings.Join(args, " "),
			Tenant: searchTenant,
			Method: searchMethod,
		}
		if cmd.Flags().Changed("limit") {
			req.Limit = &searchLimit
		}
		envelope, err := svc.Search(context.Background(), req)
		if err != nil {
			return err
		}

		if searchJSON {
			buf, err := json.MarshalIndent(envelope, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(buf))
			return nil
		}

		fmt.Printf("%d results for %q (%s, %.3fs)\n\n",
			envelope.TotalResults, envelope.Query,
			envelope.SearchMetadata.SearchMethod, envelope.ProcessingTime)
		for i, r := range envelope.Results {
			fmt.Printf("%d. [%.3f] %s / %s\n", i+1, r.Score, r.Fragment.DocumentID, r.Fragment.FragmentID)
			text := r.Highlighted
			if text == "" {
				text = r.Fragment.Content
			}
			if len(text) > 300 {
				text = text[:300] + "..."
			}
			fmt.Printf("   %s\n\n", text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchTenant, "tenant", "t", "", "tenant to search (required)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "maximum results (default from config)")
	searchCmd.Flags().StringVar(&searchMethod, "method", "auto", "search method: auto, vector, hybrid")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "print the full response envelope as JSON")
}
