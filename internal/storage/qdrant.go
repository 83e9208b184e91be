package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig configures the Qdrant connection and collection.
type QdrantConfig struct {
	Host       string
	Port       int // gRPC port
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

// QdrantStorage implements Index on a single Qdrant collection.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(ctx context.Context, cfg QdrantConfig) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	storage := &QdrantStorage{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}

	if err := storage.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrVectorStoreUnreachable, err)
	}

	return storage, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection with cosine distance and keyword
// payload indexes on the filterable fields.
func (s *QdrantStorage) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return s.createPayloadIndexes(ctx)
}

func (s *QdrantStorage) createPayloadIndexes(ctx context.Context) error {
	for _, field := range []string{FieldSource, FieldDepartment, FieldGeneration} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Reset drops the collection and recreates it.
func (s *QdrantStorage) Reset(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}
	return s.EnsureCollection(ctx)
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Upsert stores points in batches of 100. A failure mid-way leaves the
// earlier batches in place.
func (s *QdrantStorage) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := checkDimensions(points, s.dimension); err != nil {
		return err
	}

	const batchSize = 100
	for i := 0; i < len(points); i += batchSize {
		end := min(i+batchSize, len(points))

		batch := make([]*qdrant.PointStruct, 0, end-i)
		for _, p := range points[i:end] {
			batch = append(batch, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(map[string]any{
					FieldText:       p.Text,
					FieldSource:     p.Source,
					FieldDepartment: p.Department,
					FieldGeneration: p.Generation,
					FieldChunkIndex: p.ChunkIndex,
					FieldUploadedAt: p.UploadedAt.UTC().Format(time.RFC3339Nano),
				}),
			})
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         batch,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Search runs a filtered similarity query.
func (s *QdrantStorage) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	if len(req.Vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(req.Vector), s.dimension)
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil, nil
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Filter:         searchFilter(req),
		Limit:          qdrant.PtrOf(uint64(req.Limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, result := range results {
		p := pointFromPayload(result.Payload)
		p.ID = result.Id.GetUuid()
		hits = append(hits, Hit{Point: p, Score: float64(result.Score)})
	}
	return hits, nil
}

// searchFilter returns nil when the request needs no filtering.
func searchFilter(req SearchRequest) *qdrant.Filter {
	filter := &qdrant.Filter{}
	if !IsWildcardDepartment(req.Department) {
		filter.Must = append(filter.Must,
			qdrant.NewMatchKeywords(FieldDepartment, req.Department, AllDepartments))
	}
	if len(req.ExcludeGenerations) > 0 {
		filter.MustNot = append(filter.MustNot,
			qdrant.NewMatchKeywords(FieldGeneration, req.ExcludeGenerations...))
	}
	if len(filter.Must) == 0 && len(filter.MustNot) == 0 {
		return nil
	}
	return filter
}

// Delete removes every point matching sel. Deleting from a missing
// collection is a no-op.
func (s *QdrantStorage) Delete(ctx context.Context, sel Selector) error {
	if err := checkSelector(sel); err != nil {
		return err
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil
	}

	filter := &qdrant.Filter{}
	if sel.Source != "" {
		filter.Must = append(filter.Must, qdrant.NewMatch(FieldSource, sel.Source))
	}
	if sel.Generation != "" {
		filter.Must = append(filter.Must, qdrant.NewMatch(FieldGeneration, sel.Generation))
	}
	if sel.ExceptGeneration != "" {
		filter.MustNot = append(filter.MustNot, qdrant.NewMatch(FieldGeneration, sel.ExceptGeneration))
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// ListGenerations scrolls the whole collection and groups points by source
// and generation.
func (s *QdrantStorage) ListGenerations(ctx context.Context) ([]GenerationInfo, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil, nil
	}

	agg := newGenerationAggregator()
	var offset *qdrant.PointId
	batchSize := uint32(256)

	for {
		results, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload: qdrant.NewWithPayloadInclude(
				FieldSource, FieldDepartment, FieldGeneration, FieldUploadedAt),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}

		for _, result := range results {
			agg.add(pointFromPayload(result.Payload))
		}

		// The next page starts at the first point not yet returned.
		if next == nil {
			break
		}
		offset = next
	}

	return agg.list(), nil
}

func pointFromPayload(payload map[string]*qdrant.Value) Point {
	uploadedAt, err := time.Parse(time.RFC3339, payload[FieldUploadedAt].GetStringValue())
	if err != nil {
		uploadedAt = time.Time{}
	}
	return Point{
		Text:       payload[FieldText].GetStringValue(),
		Source:     payload[FieldSource].GetStringValue(),
		Department: payload[FieldDepartment].GetStringValue(),
		Generation: payload[FieldGeneration].GetStringValue(),
		ChunkIndex: int(payload[FieldChunkIndex].GetIntegerValue()),
		UploadedAt: uploadedAt,
	}
}
