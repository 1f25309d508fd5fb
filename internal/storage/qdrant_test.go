package storage

import (
	"context"
	"sort"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/kyleking/sql-agent/internal/embedding"
)

type fakeQdrantCollections struct {
	names   []string
	created []*qdrant.CreateCollection
	deleted []string
}

func (f *fakeQdrantCollections) List(context.Context, *qdrant.ListCollectionsRequest, ...grpc.CallOption) (*qdrant.ListCollectionsResponse, error) {
	resp := &qdrant.ListCollectionsResponse{}
	for _, name := range f.names {
		resp.Collections = append(resp.Collections, &qdrant.CollectionDescription{Name: name})
	}

	return resp, nil
}

func (f *fakeQdrantCollections) Create(_ context.Context, in *qdrant.CreateCollection, _ ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error) {
	f.created = append(f.created, in)
	f.names = append(f.names, in.CollectionName)

	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

func (f *fakeQdrantCollections) Delete(_ context.Context, in *qdrant.DeleteCollection, _ ...grpc.CallOption) (*qdrant.CollectionOperationResponse, error) {
	f.deleted = append(f.deleted, in.CollectionName)

	kept := f.names[:0]
	for _, name := range f.names {
		if name != in.CollectionName {
			kept = append(kept, name)
		}
	}
	f.names = kept

	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

// fakeQdrantPoints keeps points in a map keyed by uuid and scores by cosine
type fakeQdrantPoints struct {
	points map[string]*qdrant.PointStruct
}

func newFakeQdrantPoints() *fakeQdrantPoints {
	return &fakeQdrantPoints{points: map[string]*qdrant.PointStruct{}}
}

func (f *fakeQdrantPoints) Upsert(_ context.Context, in *qdrant.UpsertPoints, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	for _, p := range in.Points {
		f.points[p.Id.GetUuid()] = p
	}

	return &qdrant.PointsOperationResponse{}, nil
}

func (f *fakeQdrantPoints) Delete(_ context.Context, in *qdrant.DeletePoints, _ ...grpc.CallOption) (*qdrant.PointsOperationResponse, error) {
	for _, id := range in.GetPoints().GetPoints().GetIds() {
		delete(f.points, id.GetUuid())
	}

	return &qdrant.PointsOperationResponse{}, nil
}

func (f *fakeQdrantPoints) Get(_ context.Context, in *qdrant.GetPoints, _ ...grpc.CallOption) (*qdrant.GetResponse, error) {
	resp := &qdrant.GetResponse{}
	for _, id := range in.Ids {
		if p, ok := f.points[id.GetUuid()]; ok {
			resp.Result = append(resp.Result, &qdrant.RetrievedPoint{Id: p.Id, Payload: p.Payload})
		}
	}

	return resp, nil
}

func (f *fakeQdrantPoints) Search(_ context.Context, in *qdrant.SearchPoints, _ ...grpc.CallOption) (*qdrant.SearchResponse, error) {
	resp := &qdrant.SearchResponse{}
	for _, p := range f.points {
		score := embedding.CosineSimilarity(in.Vector, p.Vectors.GetVector().GetData())
		resp.Result = append(resp.Result, &qdrant.ScoredPoint{Id: p.Id, Payload: p.Payload, Score: float32(score)})
	}

	sort.Slice(resp.Result, func(i, j int) bool { return resp.Result[i].Score > resp.Result[j].Score })

	if uint64(len(resp.Result)) > in.Limit {
		resp.Result = resp.Result[:in.Limit]
	}

	return resp, nil
}

// Scroll returns one point per page to exercise pagination
func (f *fakeQdrantPoints) Scroll(_ context.Context, in *qdrant.ScrollPoints, _ ...grpc.CallOption) (*qdrant.ScrollResponse, error) {
	keys := make([]string, 0, len(f.points))
	for k := range f.points {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.Offset != nil {
		for i, k := range keys {
			if k == in.Offset.GetUuid() {
				start = i
			}
		}
	}

	resp := &qdrant.ScrollResponse{}
	if start < len(keys) {
		p := f.points[keys[start]]
		resp.Result = []*qdrant.RetrievedPoint{{Id: p.Id, Payload: p.Payload}}
	}

	if start+1 < len(keys) {
		resp.NextPageOffset = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: keys[start+1]}}
	}

	return resp, nil
}

func (f *fakeQdrantPoints) Count(context.Context, *qdrant.CountPoints, ...grpc.CallOption) (*qdrant.CountResponse, error) {
	return &qdrant.CountResponse{Result: &qdrant.CountResult{Count: uint64(len(f.points))}}, nil
}

func newFakeQdrant(t *testing.T, existing ...string) (*QdrantCollection, *fakeQdrantCollections, *fakeQdrantPoints) {
	t.Helper()

	collections := &fakeQdrantCollections{names: existing}
	points := newFakeQdrantPoints()
	c := newQdrantCollection(collections, points, "database_schemas", embedding.NewHashProvider(64))

	require.NoError(t, c.ensureCollection(context.Background()))

	return c, collections, points
}

func TestQdrantCreatesMissingCollection(t *testing.T) {
	_, collections, _ := newFakeQdrant(t)

	require.Len(t, collections.created, 1)
	params := collections.created[0].GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(64), params.GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())
}

func TestQdrantReusesExistingCollection(t *testing.T) {
	_, collections, _ := newFakeQdrant(t, "database_schemas")
	assert.Empty(t, collections.created)
}

func TestQdrantRoundTrip(t *testing.T) {
	c, _, points := newFakeQdrant(t)
	ctx := context.Background()
	seed(t, c)

	require.NoError(t, c.Upsert(ctx, "orders", contractDocs["orders"], Metadata{
		"table_name": "orders", "version": 2, "weight": 1.5, "active": true,
	}))
	assert.Len(t, points.points, len(contractDocs), "point ids are stable per document id")

	got, err := c.Get(ctx, "orders", "missing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, contractDocs["orders"], got[0].Document)
	assert.Equal(t, int64(2), got[0].Metadata["version"])
	assert.Equal(t, 1.5, got[0].Metadata["weight"])
	assert.Equal(t, true, got[0].Metadata["active"])

	matches, err := c.Query(ctx, "order amount per customer", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "orders", matches[0].ID)

	records, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, len(contractDocs))
	assert.Equal(t, "customers", records[0].ID)

	require.NoError(t, c.Delete(ctx, "orders"))
	count, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(contractDocs)-1, count)
}

func TestQdrantResetRecreatesCollection(t *testing.T) {
	c, collections, _ := newFakeQdrant(t)

	require.NoError(t, c.Reset(context.Background()))
	assert.Equal(t, []string{"database_schemas"}, collections.deleted)
	assert.Len(t, collections.created, 2)
}

func TestPointIDIsDeterministic(t *testing.T) {
	assert.Equal(t, pointID("orders").GetUuid(), pointID("orders").GetUuid())
	assert.NotEqual(t, pointID("orders").GetUuid(), pointID("customers").GetUuid())
}
