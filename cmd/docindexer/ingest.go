package docindexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/finlex/docindexer/pkg/core"
	"github.com/finlex/docindexer/pkg/indexer"
	"github.com/finlex/docindexer/pkg/service"
)

var (
	ingestTenant   string
	ingestDocID    string
	ingestMeta     string
	ingestPriority int
	ingestWait     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file-or-directory...]",
	Short: "Index documents from local files or directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		var metadata map[string]interface{}
		if ingestMeta != "" {
			if err := json.Unmarshal([]byte(ingestMeta), &metadata); err != nil {
				return fmt.Errorf("invalid --metadata JSON: %w", err)
			}
		}

		svc, err := service.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create service: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			_ = svc.Close(ctx)
		}()

		ctx := context.Background()
		var jobIDs []string
		for _, path := range args {
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			if info.IsDir() {
				ids, err := svc.IndexDirectory(ctx, path, ingestTenant, ingestPriority)
				if err != nil {
					return err
				}
				jobIDs = append(jobIDs, ids...)
				continue
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			jobID, err := svc.Index(ctx, indexer.SubmitRequest{
				Tenant:     ingestTenant,
				DocumentID: ingestDocID,
				SourcePath: path,
				Content:    data,
				Filename:   filepath.Base(path),
				Metadata:   metadata,
				Priority:   ingestPriority,
			})
			if err != nil {
				return err
			}
			jobIDs = append(jobIDs, jobID)
		}

		fmt.Printf("Queued %d jobs\n", len(jobIDs))
		for _, id := range jobIDs {
			fmt.Printf("  %s\n", id)
		}

		if !ingestWait {
			return nil
		}
		for _, id := range jobIDs {
			job := waitForJob(svc, id)
			if job == nil {
				fmt.Printf("  %s: status unknown\n", id)
				continue
			}
			if job.Status == core.JobStatusCompleted {
				fmt.Printf("  %s: %d chunks in %.2fs\n", id, job.ChunksCreated, job.ProcessingTime)
			} else {
				fmt.Printf("  %s: %s (%s)\n", id, job.Status, job.ErrorMessage)
			}
		}
		return nil
	},
}

func waitForJob(svc *service.Service, jobID string) *core.IndexingJob {
	deadline := time.Now().Add(10 * time.Minute)
	for time.Now().Before(deadline) {
		job, err := svc.JobStatus(jobID)
		if err != nil {
			return nil
		}
		if job.Status == core.JobStatusCompleted || job.Status == core.JobStatusFailed {
			return job
		}
		time.Sleep(200 * time.Millisecond)
	}
	return nil
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestTenant, "tenant", "t", "", "tenant the documents belong to (required)")
	ingestCmd.Flags().StringVar(&ingestDocID, "document-id", "", "explicit document ID (single file only)")
	ingestCmd.Flags().StringVarP(&ingestMeta, "metadata", "m", "", "document metadata as a JSON object")
	ingestCmd.Flags().IntVar(&ingestPriority, "priority", core.PriorityNormal, "job priority: 1 high, 2 normal, 3 low")
	ingestCmd.Flags().BoolVarP(&ingestWait, "wait", "w", true, "wait for jobs to finish")
}
