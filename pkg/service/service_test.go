package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlex/docindexer/pkg/config"
	"github.com/finlex/docindexer/pkg/core"
	"github.com/finlex/docindexer/pkg/indexer"
	"github.com/finlex/docindexer/pkg/search"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default(t.TempDir())
	cfg.Store.Backend = "sqlite"
	cfg.Store.DBPath = ":memory:"
	cfg.Embedder.Provider = "local"
	cfg.Embedder.VectorDimension = 64

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func waitCompleted(t *testing.T, s *Service, jobID string) *core.IndexingJob {
	t.Helper()
	var job *core.IndexingJob
	require.Eventually(t, func() bool {
		j, err := s.JobStatus(jobID)
		if err != nil {
			return false
		}
		job = j
		return j.Status == core.JobStatusCompleted || j.Status == core.JobStatusFailed
	}, 10*time.Second, 20*time.Millisecond)
	require.Equal(t, core.JobStatusCompleted, job.Status, job.ErrorMessage)
	return job
}

func TestIndexThenSearchRoundTrip(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	jobID, err := s.Index(ctx, indexer.SubmitRequest{
		Tenant:     "acme",
		DocumentID: "receipt-1",
		Content: []byte("RECEIPT\nMerchant: Starbucks\nDate: 03/14/2024\n" +
			"Item Description: Grande Latte\nTotal Amount: $10.50\n"),
		MimeType: "text/plain",
		Filename: "receipt.txt",
		Metadata: map[string]interface{}{"amount": 10.50, "merchant": "Starbucks", "category": "meals"},
	})
	require.NoError(t, err)
	job := waitCompleted(t, s, jobID)
	assert.Greater(t, job.ChunksCreated, 0)

	env, err := s.Search(ctx, search.Request{Query: "starbucks latte purchase", Tenant: "acme"})
	require.NoError(t, err)
	require.NotEmpty(t, env.Results)
	assert.Equal(t, "receipt-1", env.Results[0].Fragment.DocumentID)
	assert.Equal(t, "Starbucks", env.Results[0].Fragment.Merchant)
}

func TestSearchIsTenantScoped(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	jobID, err := s.Index(ctx, indexer.SubmitRequest{
		Tenant:   "acme",
		Content:  []byte("office chairs invoice total $400.00"),
		MimeType: "text/plain",
	})
	require.NoError(t, err)
	waitCompleted(t, s, jobID)

	env, err := s.Search(ctx, search.Request{Query: "office chairs invoice", Tenant: "globex"})
	require.NoError(t, err)
	assert.Empty(t, env.Results)
}

func TestHealthReport(t *testing.T) {
	s := newTestService(t)

	report := s.Health(context.Background())
	assert.Equal(t, core.HealthStatusHealthy, report.Status)
	assert.Contains(t, report.Components, "search_engine")
	assert.Contains(t, report.Components, "document_indexer")
	assert.Equal(t, core.HealthStatusHealthy, report.Components["search_engine"].Status)
}

func TestStats(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	jobID, err := s.Index(ctx, indexer.SubmitRequest{
		Tenant:   "acme",
		Content:  []byte("short expense note about taxi fare"),
		MimeType: "text/plain",
	})
	require.NoError(t, err)
	waitCompleted(t, s, jobID)

	stats, err := s.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorStore.UniqueDocuments)
	assert.Equal(t, 1, stats.DocumentIndexer.CompletedJobs)
	assert.Equal(t, 1, stats.DocumentCache.Entries)
	assert.Greater(t, stats.DocumentCache.TTLSeconds, 0)
	assert.GreaterOrEqual(t, stats.UptimeSeconds, 0.0)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	jobID, err := s.Index(ctx, indexer.SubmitRequest{
		Tenant:     "acme",
		DocumentID: "gone-1",
		Content:    []byte("document that will be deleted right away"),
		MimeType:   "text/plain",
	})
	require.NoError(t, err)
	waitCompleted(t, s, jobID)

	require.NoError(t, s.DeleteDocument(ctx, "gone-1"))

	stats, err := s.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.VectorStore.TotalChunks)
}

func TestDeleteDocumentEvictsContentCache(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	content := []byte("document deleted and then submitted again")
	jobID, err := s.Index(ctx, indexer.SubmitRequest{
		Tenant:     "acme",
		DocumentID: "gone-2",
		Content:    content,
		MimeType:   "text/plain",
	})
	require.NoError(t, err)
	waitCompleted(t, s, jobID)

	require.NoError(t, s.DeleteDocument(ctx, "gone-2"))

	again, err := s.Index(ctx, indexer.SubmitRequest{
		Tenant:   "acme",
		Content:  content,
		MimeType: "text/plain",
	})
	require.NoError(t, err)
	job := waitCompleted(t, s, again)
	assert.NotEmpty(t, job.DocumentID)

	stats, err := s.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Greater(t, stats.VectorStore.TotalChunks, 0, "resubmitted bytes must be reindexed after delete")
}

func TestResubmitSameContentReusesDocument(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	content := []byte("monthly subscription invoice total $19.99")
	first, err := s.Index(ctx, indexer.SubmitRequest{Tenant: "acme", Content: content, MimeType: "text/plain"})
	require.NoError(t, err)
	firstJob := waitCompleted(t, s, first)

	second, err := s.Index(ctx, indexer.SubmitRequest{Tenant: "acme", Content: content, MimeType: "text/plain"})
	require.NoError(t, err)
	secondJob := waitCompleted(t, s, second)

	assert.Equal(t, firstJob.DocumentID, secondJob.DocumentID)
	stats, err := s.Stats(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VectorStore.UniqueDocuments)
}

func TestIndexAfterCloseFails(t *testing.T) {
	s := newTestService(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	_, err := s.Index(context.Background(), indexer.SubmitRequest{
		Tenant:  "acme",
		Content: []byte("late submission"),
	})
	assert.ErrorIs(t, err, core.ErrShutdown)
}
