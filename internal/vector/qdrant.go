package vector

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/hyperjump/mensetsu/internal/config"
	"github.com/hyperjump/mensetsu/internal/models"
)

// Payload keys written next to every Qdrant point.
const (
	payloadChunkID      = "chunk_id"
	payloadSourceKey    = "source_key"
	payloadOriginalName = "original_name"
	payloadOwnerID      = "owner_id"
	payloadChunkIndex   = "chunk_index"
	payloadTextPreview  = "text_preview"
	payloadText         = "text"
	payloadTitle        = "title"
	payloadURL          = "url"
)

// pointNamespace derives Qdrant point UUIDs from chunk ids. Qdrant only accepts
// unsigned integers or UUIDs as point ids.
var pointNamespace = uuid.MustParse("6f1c3a52-7a3e-4d7e-9b0e-1f4d2c8e5a10")

// QdrantIndex implements VectorIndex on a Qdrant collection over gRPC.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	apiKey      string
	dimensions  int
}

// NewQdrantIndex connects to Qdrant and creates the collection (cosine distance) if missing.
func NewQdrantIndex(ctx context.Context, cfg config.QdrantConfig, dimensions int) (*QdrantIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrConfig)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection is required", models.ErrConfig)
	}
	creds := insecure.NewCredentials()
	if cfg.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant connect: %w", models.ErrIndex, err)
	}
	q := &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		apiKey:      cfg.APIKey,
		dimensions:  dimensions,
	}
	if err := q.ensureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *QdrantIndex) withAuth(ctx context.Context) context.Context {
	if q.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", q.apiKey)
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	ctx = q.withAuth(ctx)
	resp, err := q.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: q.collection})
	if err != nil {
		return fmt.Errorf("%w: qdrant collection exists: %w", models.ErrIndex, err)
	}
	if resp.GetResult().GetExists() {
		return nil
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(q.dimensions),
			Distance: pb.Distance_Cosine,
		}}},
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant create collection %s: %w", models.ErrIndex, q.collection, err)
	}
	return nil
}

// Type returns the index type identifier.
func (q *QdrantIndex) Type() string {
	return string(IndexTypeQdrant)
}

// PointID returns the Qdrant UUID used for chunk id.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

func pointID(id string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// Upsert writes one point and waits for Qdrant to apply it.
func (q *QdrantIndex) Upsert(ctx context.Context, id string, vec []float32, meta models.ChunkMetadata) error {
	if len(vec) != q.dimensions {
		return fmt.Errorf("%w: vector dimension mismatch: got %d, expected %d", models.ErrIndex, len(vec), q.dimensions)
	}
	wait := true
	_, err := q.points.Upsert(q.withAuth(ctx), &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      pointID(id),
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}}},
			Payload: payloadFor(id, meta),
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant upsert %s: %w", models.ErrIndex, id, err)
	}
	return nil
}

func payloadFor(id string, meta models.ChunkMetadata) map[string]*pb.Value {
	return map[string]*pb.Value{
		payloadChunkID:      stringValue(id),
		payloadSourceKey:    stringValue(meta.SourceKey),
		payloadOriginalName: stringValue(meta.OriginalName),
		payloadOwnerID:      stringValue(meta.OwnerID),
		payloadChunkIndex:   {Kind: &pb.Value_IntegerValue{IntegerValue: int64(meta.ChunkIndex)}},
		payloadTextPreview:  stringValue(meta.TextPreview),
		payloadText:         stringValue(meta.Text),
		payloadTitle:        stringValue(meta.Title),
		payloadURL:          stringValue(meta.URL),
	}
}

func metadataFrom(payload map[string]*pb.Value) (string, models.ChunkMetadata) {
	meta := models.ChunkMetadata{
		SourceKey:    payload[payloadSourceKey].GetStringValue(),
		OriginalName: payload[payloadOriginalName].GetStringValue(),
		OwnerID:      payload[payloadOwnerID].GetStringValue(),
		TextPreview:  payload[payloadTextPreview].GetStringValue(),
		Text:         payload[payloadText].GetStringValue(),
		Title:        payload[payloadTitle].GetStringValue(),
		URL:          payload[payloadURL].GetStringValue(),
	}
	switch v := payload[payloadChunkIndex].GetKind().(type) {
	case *pb.Value_IntegerValue:
		meta.ChunkIndex = int(v.IntegerValue)
	case *pb.Value_DoubleValue:
		meta.ChunkIndex = int(v.DoubleValue)
	case *pb.Value_StringValue:
		meta.ChunkIndex, _ = strconv.Atoi(v.StringValue)
	}
	return payload[payloadChunkID].GetStringValue(), meta
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
		Key:   key,
		Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
	}}}
}

// qdrantFilter converts a query filter to Qdrant must-conditions. Returns nil when nothing is restricted.
func qdrantFilter(f *models.Filter) *pb.Filter {
	if f == nil {
		return nil
	}
	var must []*pb.Condition
	if f.OwnerID != "" {
		must = append(must, keywordCondition(payloadOwnerID, f.OwnerID))
	}
	if f.SourceKey != "" {
		must = append(must, keywordCondition(payloadSourceKey, f.SourceKey))
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

// Query runs a filtered similarity search. Qdrant returns results ordered by score.
func (q *QdrantIndex) Query(ctx context.Context, vec []float32, k int, filter *models.Filter) ([]*models.Match, error) {
	if len(vec) != q.dimensions {
		return nil, fmt.Errorf("%w: query dimension mismatch: got %d, expected %d", models.ErrIndex, len(vec), q.dimensions)
	}
	if k <= 0 {
		return []*models.Match{}, nil
	}
	resp, err := q.points.Search(q.withAuth(ctx), &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vec,
		Limit:          uint64(k),
		Filter:         qdrantFilter(filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant search: %w", models.ErrIndex, err)
	}
	matches := make([]*models.Match, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		id, meta := metadataFrom(pt.GetPayload())
		if id == "" {
			id = pt.GetId().GetUuid()
		}
		matches = append(matches, &models.Match{ID: id, Score: float64(pt.GetScore()), Metadata: meta})
	}
	return matches, nil
}

// Delete removes points by chunk id.
func (q *QdrantIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	pids := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}
	return q.deletePoints(ctx, &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
		Points: &pb.PointsIdsList{Ids: pids},
	}})
}

// DeleteByPrefix removes every point of the resume whose source key is parentKey.
// Chunk ids are derived from the source key, so the payload filter covers the id prefix.
func (q *QdrantIndex) DeleteByPrefix(ctx context.Context, parentKey string) error {
	if parentKey == "" {
		return fmt.Errorf("%w: empty parent key", models.ErrIndex)
	}
	return q.deletePoints(ctx, &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Filter{
		Filter: &pb.Filter{Must: []*pb.Condition{keywordCondition(payloadSourceKey, parentKey)}},
	}})
}

func (q *QdrantIndex) deletePoints(ctx context.Context, sel *pb.PointsSelector) error {
	wait := true
	_, err := q.points.Delete(q.withAuth(ctx), &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         sel,
	})
	if err != nil {
		return fmt.Errorf("%w: qdrant delete: %w", models.ErrIndex, err)
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := q.points.Count(q.withAuth(ctx), &pb.CountPoints{CollectionName: q.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant count: %w", models.ErrIndex, err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}
