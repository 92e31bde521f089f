package docindexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/finlex/docindexer/pkg/service"
)

var statusTenant string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = svc.Close(ctx)
		}()

		stats, err := svc.Stats(context.Background(), statusTenant)
		if err != nil {
			return err
		}
		report := svc.Health(context.Background())

		fmt.Printf("Status: %s\n", report.Status)
		fmt.Printf("Fragments: %d (%d documents, %d tenants)\n",
			stats.VectorStore.TotalChunks, stats.VectorStore.UniqueDocuments, stats.VectorStore.UniqueBusinesses)
		fmt.Printf("Queue: %d pending, %d active, %d completed, %d failed\n",
			stats.DocumentIndexer.PendingJobs, stats.DocumentIndexer.ActiveJobs,
			stats.DocumentIndexer.CompletedJobs, stats.DocumentIndexer.FailedJobs)
		fmt.Printf("Cache: %d entries (ttl %ds)\n",
			stats.DocumentCache.Entries, stats.DocumentCache.TTLSeconds)

		buf, err := json.MarshalIndent(stats.DocumentIndexer.Metrics, "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("Metrics: %s\n", buf)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusTenant, "tenant", "t", "", "scope statistics to one tenant")
}
