package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/finlex/docindexer/pkg/core"
)

const qdrantDialTimeout = 30 * time.Second

var waitTrue = true

// QdrantStore persists fragments as points whose payload mirrors the typed
// fragment columns. Point IDs are deterministic UUIDs derived from the
// fragment ID, so re-upserting a fragment replaces it.
type QdrantStore struct {
	points     pb.PointsClient
	conn       *grpc.ClientConn
	collection string
	dimension  int
}

// NewQdrantStore connects to a Qdrant server and ensures the collection
// exists with the configured dimension and cosine distance.
func NewQdrantStore(addr, collection string, dimension int) (*QdrantStore, error) {
	if collection == "" {
		collection = "expense_documents"
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive: %d", dimension)
	}

	addr = strings.TrimPrefix(strings.TrimPrefix(addr, "http://"), "https://")

	ctx, cancel := context.WithTimeout(context.Background(), qdrantDialTimeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	s := &QdrantStore{
		points:     pb.NewPointsClient(conn),
		conn:       conn,
		collection: collection,
		dimension:  dimension,
	}

	if err := s.ensureCollection(ctx, pb.NewCollectionsClient(conn)); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, client pb.CollectionsClient) error {
	listResp, err := client.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, col := range listResp.Collections {
		if col.Name == s.collection {
			return nil
		}
	}

	_, err = client.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	log.Printf("[INFO] created Qdrant collection %s (dimension %d)", s.collection, s.dimension)
	return nil
}

// Upsert writes fragments as points. Empty-content rows are dropped with a
// warning; accepted fragment IDs are returned.
func (s *QdrantStore) Upsert(ctx context.Context, fragments []core.Fragment) ([]string, error) {
	if len(fragments) == 0 {
		return nil, nil
	}

	points := make([]*pb.PointStruct, 0, len(fragments))
	accepted := make([]string, 0, len(fragments))

	for _, f := range fragments {
		if strings.TrimSpace(f.Content) == "" {
			log.Printf("[WARN] dropping fragment %s with empty content", f.FragmentID)
			continue
		}
		if f.Tenant == "" {
			return nil, core.WrapErrorWithContext(core.ErrTenantRequired, nil, "fragment %s", f.FragmentID)
		}
		if len(f.Vector) != s.dimension {
			return nil, core.WrapErrorWithContext(core.ErrDimensionMismatch, nil,
				"fragment %s has dimension %d, store expects %d", f.FragmentID, len(f.Vector), s.dimension)
		}

		vector := make([]float32, len(f.Vector))
		for i, v := range f.Vector {
			vector[i] = float32(v)
		}

		createdAt := f.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		points = append(points, &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{
				Uuid: uuid.NewSHA1(uuid.NameSpaceOID, []byte(f.FragmentID)).String(),
			}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: vector},
			}},
			Payload: fragmentPayload(f, createdAt),
		})
		accepted = append(accepted, f.FragmentID)
	}

	if len(points) == 0 {
		return accepted, nil
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           &waitTrue,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "qdrant upsert")
	}
	return accepted, nil
}

func fragmentPayload(f core.Fragment, createdAt time.Time) map[string]*pb.Value {
	return map[string]*pb.Value{
		"fragment_id":        strValue(f.FragmentID),
		"tenant":             strValue(f.Tenant),
		"document_id":        strValue(f.DocumentID),
		"content":            strValue(f.Content),
		"chunk_index":        intValue(int64(f.ChunkIndex)),
		"chunk_type":         strValue(f.ChunkType),
		"parent_fragment_id": strValue(f.ParentFragmentID),
		"start_char":         intValue(int64(f.StartChar)),
		"end_char":           intValue(int64(f.EndChar)),
		"amount":             {Kind: &pb.Value_DoubleValue{DoubleValue: f.Amount}},
		"category":           strValue(f.Category),
		"merchant":           strValue(f.Merchant),
		"expense_date":       strValue(f.ExpenseDate),
		"document_type":      strValue(f.DocumentType),
		"source_url":         strValue(f.SourceURL),
		"metadata_json":      strValue(f.MetadataJSON),
		"created_at":         strValue(createdAt.Format(time.RFC3339)),
	}
}

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func intValue(n int64) *pb.Value {
	return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
}

// Search queries the collection with the mandatory tenant condition plus the
// typed filter predicates.
func (s *QdrantStore) Search(ctx context.Context, queryVector []float64, tenant string, k int, filters core.SearchFilters, threshold float64) ([]core.SearchResult, error) {
	if tenant == "" {
		return nil, core.ErrTenantRequired
	}
	if len(queryVector) != s.dimension {
		return nil, core.WrapErrorWithContext(core.ErrDimensionMismatch, nil,
			"query has dimension %d, store expects %d", len(queryVector), s.dimension)
	}
	if k <= 0 {
		return []core.SearchResult{}, nil
	}

	vector := make([]float32, len(queryVector))
	for i, v := range queryVector {
		vector[i] = float32(v)
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Filter:         buildQdrantFilter(tenant, filters),
		Limit:          uint64(k),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "qdrant search")
	}

	results := make([]core.SearchResult, 0, len(resp.Result))
	for _, point := range resp.Result {
		// Cosine metric reports similarity; convert through distance so the
		// score matches the sqlite backend.
		similarity := similarityFromDistance(1 - float64(point.Score))
		if similarity < threshold {
			continue
		}
		results = append(results, core.SearchResult{
			Fragment: fragmentFromPayload(point.Payload),
			Score:    similarity,
		})
	}
	return results, nil
}

// HybridSearch mirrors the sqlite backend's transitional keyword re-ranking.
func (s *QdrantStore) HybridSearch(ctx context.Context, queryVector []float64, queryText, tenant string, k int, filters core.SearchFilters) ([]core.SearchResult, error) {
	raw, err := s.Search(ctx, queryVector, tenant, 2*k, filters, 0.5)
	if err != nil {
		return nil, err
	}
	return rerankHybrid(raw, queryText, k), nil
}

func buildQdrantFilter(tenant string, filters core.SearchFilters) *pb.Filter {
	conditions := []*pb.Condition{keywordCondition("tenant", tenant)}

	if filters.Category != "" {
		conditions = append(conditions, keywordCondition("category", filters.Category))
	}
	if filters.Merchant != "" {
		conditions = append(conditions, &pb.Condition{ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   "merchant",
				Match: &pb.Match{MatchValue: &pb.Match_Text{Text: filters.Merchant}},
			},
		}})
	}
	if filters.DocumentType != "" {
		conditions = append(conditions, keywordCondition("document_type", filters.DocumentType))
	}
	if filters.Amount != nil {
		r := &pb.Range{}
		v := filters.Amount.Value
		switch filters.Amount.Op {
		case ">":
			r.Gt = &v
		case ">=":
			r.Gte = &v
		case "<":
			r.Lt = &v
		case "<=":
			r.Lte = &v
		default:
			r.Gte, r.Lte = &v, &v
		}
		conditions = append(conditions, &pb.Condition{ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{Key: "amount", Range: r},
		}})
	}
	if filters.Date != nil && filters.Date.Value != "" {
		// Dates are ISO strings; keyword match covers the "on" case and the
		// range cases degrade to it. Lexical ranges need a proper index.
		conditions = append(conditions, keywordCondition("expense_date", filters.Date.Value))
	}
	for key, value := range filters.Extra {
		conditions = append(conditions, &pb.Condition{ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   "metadata_json",
				Match: &pb.Match{MatchValue: &pb.Match_Text{Text: fmt.Sprintf("%v", value)}},
			},
		}})
		_ = key
	}

	return &pb.Filter{Must: conditions}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{
		Field: &pb.FieldCondition{
			Key:   key,
			Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
		},
	}}
}

func fragmentFromPayload(payload map[string]*pb.Value) core.Fragment {
	f := core.Fragment{
		FragmentID:       payload["fragment_id"].GetStringValue(),
		Tenant:           payload["tenant"].GetStringValue(),
		DocumentID:       payload["document_id"].GetStringValue(),
		Content:          payload["content"].GetStringValue(),
		ChunkIndex:       int(payload["chunk_index"].GetIntegerValue()),
		ChunkType:        payload["chunk_type"].GetStringValue(),
		ParentFragmentID: payload["parent_fragment_id"].GetStringValue(),
		StartChar:        int(payload["start_char"].GetIntegerValue()),
		EndChar:          int(payload["end_char"].GetIntegerValue()),
		Amount:           payload["amount"].GetDoubleValue(),
		Category:         payload["category"].GetStringValue(),
		Merchant:         payload["merchant"].GetStringValue(),
		ExpenseDate:      payload["expense_date"].GetStringValue(),
		DocumentType:     payload["document_type"].GetStringValue(),
		SourceURL:        payload["source_url"].GetStringValue(),
		MetadataJSON:     payload["metadata_json"].GetStringValue(),
	}
	if ts, err := time.Parse(time.RFC3339, payload["created_at"].GetStringValue()); err == nil {
		f.CreatedAt = ts
	}
	return f
}

// GetByDocument scrolls all points of a document and orders them by chunk
// index.
func (s *QdrantStore) GetByDocument(ctx context.Context, documentID string) ([]core.Fragment, error) {
	filter := &pb.Filter{Must: []*pb.Condition{keywordCondition("document_id", documentID)}}

	var (
		fragments []core.Fragment
		offset    *pb.PointId
	)
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Offset:         offset,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
			},
		})
		if err != nil {
			return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "qdrant scroll")
		}
		for _, point := range resp.Result {
			fragments = append(fragments, fragmentFromPayload(point.Payload))
		}
		if resp.NextPageOffset == nil {
			break
		}
		offset = resp.NextPageOffset
	}

	sort.SliceStable(fragments, func(i, j int) bool { return fragments[i].ChunkIndex < fragments[j].ChunkIndex })
	return fragments, nil
}

// Delete removes all points of a document by filter.
func (s *QdrantStore) Delete(ctx context.Context, documentID string) error {
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{keywordCondition("document_id", documentID)}},
			},
		},
		Wait: &waitTrue,
	})
	if err != nil {
		return core.WrapErrorWithContext(core.ErrUpstreamUnavailable, err, "delete document %s", documentID)
	}
	return nil
}

// Stats scrolls the collection counting rows, documents, and tenants.
func (s *QdrantStore) Stats(ctx context.Context, tenant string) (*core.StoreStats, error) {
	var filter *pb.Filter
	if tenant != "" {
		filter = &pb.Filter{Must: []*pb.Condition{keywordCondition("tenant", tenant)}}
	}

	stats := &core.StoreStats{}
	documents := map[string]struct{}{}
	tenants := map[string]struct{}{}

	var offset *pb.PointId
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Offset:         offset,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
			},
		})
		if err != nil {
			return nil, core.WrapError(core.ErrUpstreamUnavailable, err, "qdrant stats scroll")
		}
		for _, point := range resp.Result {
			stats.TotalChunks++
			documents[point.Payload["document_id"].GetStringValue()] = struct{}{}
			tenants[point.Payload["tenant"].GetStringValue()] = struct{}{}
		}
		if resp.NextPageOffset == nil {
			break
		}
		offset = resp.NextPageOffset
	}

	stats.UniqueDocuments = len(documents)
	stats.UniqueBusinesses = len(tenants)
	return stats, nil
}

// HealthCheck verifies the server answers a trivial request.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	_, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: s.collection})
	if err != nil {
		return core.WrapError(core.ErrUpstreamUnavailable, err, "qdrant health check")
	}
	return nil
}

// Close tears down the grpc connection.
func (s *QdrantStore) Close() error {
	return s.conn.Close()
}
