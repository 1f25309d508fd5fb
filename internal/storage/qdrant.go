package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kyleking/sql-agent/internal/embedding"
	"github.com/kyleking/sql-agent/internal/errors"
)

const (
	payloadID       = "doc_id"
	payloadDocument = "document"
	payloadMetadata = "metadata"

	scrollPageSize = 256
)

// idNamespace makes point ids a stable function of the document id
var idNamespace = uuid.MustParse("6f1c3c02-4f0e-4d7a-9a44-5b8f8a1d2e10")

// qdrantCollections is the part of qdrant.CollectionsClient this package uses
type qdrantCollections interface {
	List(ctx context.Context, in *qdrant.ListCollectionsRequest, opts ...grpc.CallOption) (*qdrant.ListCollectionsResponse, error)
	Create(ctx context.Context, in *qdrant.CreateCollection, opts ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *qdrant.DeleteCollection, opts ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error)
}

// qdrantPoints is the part of qdrant.PointsClient this package uses
type qdrantPoints interface {
	Upsert(ctx context.Context, in *qdrant.UpsertPoints, opts ...grpc.CallOption) (*qdrant.PointsOperationResponse, error)
	Delete(ctx context.Context, in *qdrant.DeletePoints, opts ...grpc.CallOption) (*qdrant.PointsOperationResponse, error)
	Get(ctx context.Context, in *qdrant.GetPoints, opts ...grpc.CallOption) (*qdrant.GetResponse, error)
	Search(ctx context.Context, in *qdrant.SearchPoints, opts ...grpc.CallOption) (*qdrant.SearchResponse, error)
	Scroll(ctx context.Context, in *qdrant.ScrollPoints, opts ...grpc.CallOption) (*qdrant.ScrollResponse, error)
	Count(ctx context.Context, in *qdrant.CountPoints, opts ...grpc.CallOption) (*qdrant.CountResponse, error)
}

// QdrantCollection stores documents as points in a Qdrant collection
type QdrantCollection struct {
	conn        *grpc.ClientConn
	collections qdrantCollections
	points      qdrantPoints
	name        string
	provider    embedding.Provider
}

// OpenQdrant dials Qdrant's gRPC port and creates the collection when missing
func OpenQdrant(ctx context.Context, host string, port int, collection string, provider embedding.Provider) (*QdrantCollection, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeNetwork, "failed to connect to qdrant at %s", addr)
	}

	c := newQdrantCollection(qdrant.NewCollectionsClient(conn), qdrant.NewPointsClient(conn), collection, provider)
	c.conn = conn

	if err := c.ensureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return c, nil
}

func newQdrantCollection(collections qdrantCollections, points qdrantPoints, name string, provider embedding.Provider) *QdrantCollection {
	return &QdrantCollection{
		collections: collections,
		points:      points,
		name:        name,
		provider:    provider,
	}
}

func (c *QdrantCollection) ensureCollection(ctx context.Context) error {
	resp, err := c.collections.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeNetwork, "failed to list qdrant collections").
			WithSuggestion("Check that Qdrant is running and SQL_AGENT_QDRANT_HOST/PORT point at its gRPC port")
	}

	for _, col := range resp.GetCollections() {
		if col.GetName() == c.name {
			return nil
		}
	}

	_, err = c.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: c.name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(c.provider.GetDimensions()),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeStorage, "failed to create qdrant collection %s", c.name)
	}

	return nil
}

func pointID(id string) *qdrant.PointId {
	return &qdrant.PointId{
		PointIdOptions: &qdrant.PointId_Uuid{Uuid: uuid.NewSHA1(idNamespace, []byte(id)).String()},
	}
}

func (c *QdrantCollection) Upsert(ctx context.Context, id, document string, metadata Metadata) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := metadata.Validate(); err != nil {
		return err
	}

	vector, err := c.provider.GenerateEmbedding(ctx, document)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeEmbedding, "failed to embed document %s", id)
	}

	wait := true

	_, err = c.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id: pointID(id),
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
			},
			Payload: map[string]*qdrant.Value{
				payloadID:       stringValue(id),
				payloadDocument: stringValue(document),
				payloadMetadata: {Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: toQdrantFields(metadata)}}},
			},
		}},
	})
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeStorage, "failed to upsert point %s", id)
	}

	return nil
}

func (c *QdrantCollection) Query(ctx context.Context, text string, limit int) ([]Match, error) {
	if limit <= 0 {
		return []Match{}, nil
	}

	query, err := c.provider.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeEmbedding, "failed to embed query")
	}

	resp, err := c.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: c.name,
		Vector:         query,
		Limit:          uint64(limit),
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to search qdrant")
	}

	matches := make([]Match, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		matches = append(matches, Match{
			Record: recordFromPayload(point.GetPayload()),
			Score:  float64(point.GetScore()),
		})
	}

	return matches, nil
}

func (c *QdrantCollection) Get(ctx context.Context, ids ...string) ([]Record, error) {
	if len(ids) == 0 {
		return []Record{}, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	resp, err := c.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.name,
		Ids:            pointIDs,
		WithPayload:    withPayload(),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to get qdrant points")
	}

	records := make([]Record, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		records = append(records, recordFromPayload(point.GetPayload()))
	}

	return orderByIDs(records, ids), nil
}

func (c *QdrantCollection) List(ctx context.Context) ([]Record, error) {
	records := []Record{}
	limit := uint32(scrollPageSize)

	var offset *qdrant.PointId

	for {
		resp, err := c.points.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: c.name,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    withPayload(),
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to scroll qdrant points")
		}

		for _, point := range resp.GetResult() {
			records = append(records, recordFromPayload(point.GetPayload()))
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	return records, nil
}

func (c *QdrantCollection) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	wait := true

	_, err := c.points.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.name,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to delete qdrant points")
	}

	return nil
}

func (c *QdrantCollection) Count(ctx context.Context) (int, error) {
	exact := true

	resp, err := c.points.Count(ctx, &qdrant.CountPoints{CollectionName: c.name, Exact: &exact})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrTypeStorage, "failed to count qdrant points")
	}

	return int(resp.GetResult().GetCount()), nil
}

// Reset drops and recreates the collection
func (c *QdrantCollection) Reset(ctx context.Context) error {
	if _, err := c.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: c.name}); err != nil {
		return errors.Wrapf(err, errors.ErrTypeStorage, "failed to delete qdrant collection %s", c.name)
	}

	return c.ensureCollection(ctx)
}

func (c *QdrantCollection) Close() error {
	if c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

func withPayload() *qdrant.WithPayloadSelector {
	return &qdrant.WithPayloadSelector{
		SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
	}
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func toQdrantFields(m Metadata) map[string]*qdrant.Value {
	fields := make(map[string]*qdrant.Value, len(m))

	for key, value := range m {
		switch v := value.(type) {
		case string:
			fields[key] = stringValue(v)
		case bool:
			fields[key] = &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: v}}
		case int:
			fields[key] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
		case int32:
			fields[key] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(v)}}
		case int64:
			fields[key] = &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: v}}
		case float32:
			fields[key] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(v)}}
		case float64:
			fields[key] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: v}}
		}
	}

	return fields
}

func fromQdrantValue(v *qdrant.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	default:
		return nil
	}
}

func recordFromPayload(payload map[string]*qdrant.Value) Record {
	rec := Record{
		ID:       payload[payloadID].GetStringValue(),
		Document: payload[payloadDocument].GetStringValue(),
		Metadata: Metadata{},
	}

	for key, value := range payload[payloadMetadata].GetStructValue().GetFields() {
		if v := fromQdrantValue(value); v != nil {
			rec.Metadata[key] = v
		}
	}

	return rec
}
