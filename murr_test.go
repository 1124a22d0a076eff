package murr_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	murr "github.com/murrdb/murr"
	"github.com/murrdb/murr/directory"
	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
	"github.com/murrdb/murr/testutil"
)

func newService(t *testing.T) *murr.Service {
	t.Helper()
	s, err := murr.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createFloatTable(t *testing.T, s *murr.Service, name string) *schema.Table {
	t.Helper()
	sch := testutil.KeyedFloatSchema(t, false)
	require.NoError(t, s.Create(context.Background(), name, sch))
	return sch
}

func floats(batch *model.RecordBatch, col int) *model.Float32Array {
	return batch.Column(col).(*model.Float32Array)
}

func TestFloat32RoundTripNoNulls(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	createFloatTable(t, s, "t")

	require.NoError(t, s.Write(ctx, "t",
		testutil.KeyedFloatBatch(t, []string{"a", "b", "c"}, []float32{1, 2, 3})))

	batch, err := s.Read(ctx, "t", []string{"c", "a", "x"}, []string{"v"})
	require.NoError(t, err)
	require.Equal(t, 3, batch.NumRows())

	v := floats(batch, 0)
	assert.Equal(t, float32(3), v.Value(0))
	assert.Equal(t, float32(1), v.Value(1))
	assert.True(t, v.Null(2))
}

func TestShadowing(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	createFloatTable(t, s, "t")

	require.NoError(t, s.Write(ctx, "t",
		testutil.KeyedFloatBatch(t, []string{"a", "b", "c"}, []float32{1, 2, 3})))
	require.NoError(t, s.Write(ctx, "t",
		testutil.KeyedFloatBatch(t, []string{"a"}, []float32{10})))

	batch, err := s.Read(ctx, "t", []string{"a", "b"}, []string{"v"})
	require.NoError(t, err)

	v := floats(batch, 0)
	assert.Equal(t, float32(10), v.Value(0))
	assert.Equal(t, float32(2), v.Value(1))
}

func TestUtf8WithNulls(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	sch := testutil.MustSchema(t, "id",
		schema.Column{Name: "id", DType: schema.Utf8, Nullable: false},
		schema.Column{Name: "name", DType: schema.Utf8, Nullable: true},
	)
	require.NoError(t, s.Create(ctx, "t2", sch))

	fields := []model.Field{
		{Name: "id", DType: schema.Utf8, Nullable: false},
		{Name: "name", DType: schema.Utf8, Nullable: true},
	}
	require.NoError(t, s.Write(ctx, "t2", testutil.MustBatch(t, fields, []model.Array{
		model.Strings("1", "2", "3"),
		model.NullableStrings(testutil.Ptr("alice"), nil, testutil.Ptr("carol")),
	})))

	batch, err := s.Read(ctx, "t2", []string{"2", "3", "1"}, []string{"name"})
	require.NoError(t, err)

	name := batch.Column(0).(*model.StringArray)
	assert.True(t, name.Null(0))
	assert.Equal(t, "carol", name.Value(1))
	assert.Equal(t, "alice", name.Value(2))
}

func TestUnknownColumn(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	createFloatTable(t, s, "t")

	require.NoError(t, s.Write(ctx, "t",
		testutil.KeyedFloatBatch(t, []string{"a"}, []float32{1})))

	_, err := s.Read(ctx, "t", []string{"a"}, []string{"missing"})
	require.ErrorIs(t, err, murr.ErrUnknownColumn)
}

func TestSchemaMismatchLeavesNoSegment(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	createFloatTable(t, s, "t")

	bad := testutil.MustBatch(t,
		[]model.Field{
			{Name: "id", DType: schema.Utf8, Nullable: false},
			{Name: "unrelated", DType: schema.Float32, Nullable: false},
		},
		[]model.Array{model.Strings("a"), model.Float32s(1)},
	)
	require.ErrorIs(t, s.Write(ctx, "t", bad), murr.ErrSchemaMismatch)

	// Nothing was committed: reads still see an empty table.
	batch, err := s.Read(ctx, "t", []string{"a"}, []string{"v"})
	require.NoError(t, err)
	assert.True(t, floats(batch, 0).Null(0))

	stats, err := s.Stats("t")
	require.NoError(t, err)
	assert.Zero(t, stats.Segments)
}

func TestEmptyTableRead(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	createFloatTable(t, s, "t3")

	batch, err := s.Read(ctx, "t3", []string{"a"}, []string{"v"})
	require.NoError(t, err)
	require.Equal(t, 1, batch.NumRows())
	assert.True(t, floats(batch, 0).Null(0))
}

func TestUnknownTable(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Read(ctx, "nope", []string{"a"}, []string{"v"})
	require.ErrorIs(t, err, murr.ErrUnknownTable)

	err = s.Write(ctx, "nope", testutil.KeyedFloatBatch(t, []string{"a"}, []float32{1}))
	require.ErrorIs(t, err, murr.ErrUnknownTable)

	_, err = s.GetSchema("nope")
	require.ErrorIs(t, err, murr.ErrUnknownTable)

	_, err = s.Stats("nope")
	require.ErrorIs(t, err, murr.ErrUnknownTable)
}

func TestCreateValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	createFloatTable(t, s, "t")
	err := s.Create(ctx, "t", testutil.KeyedFloatSchema(t, false))
	require.ErrorIs(t, err, murr.ErrAlreadyExists)

	bad := &schema.Table{Key: "id", Columns: []schema.Column{
		{Name: "id", DType: schema.Utf8, Nullable: true},
	}}
	err = s.Create(ctx, "bad", bad)
	require.ErrorIs(t, err, murr.ErrInvalidSchema)

	bad = &schema.Table{Key: "id", Columns: []schema.Column{
		{Name: "id", DType: schema.Utf8, Nullable: false},
		{Name: "x", DType: schema.DType("decimal"), Nullable: true},
	}}
	err = s.Create(ctx, "bad", bad)
	require.ErrorIs(t, err, murr.ErrInvalidSchema)
}

func TestSchemaImmutability(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	sch := createFloatTable(t, s, "t")

	got, err := s.GetSchema("t")
	require.NoError(t, err)
	assert.True(t, sch.Equal(got))

	// Mutating the returned schema must not affect the service copy.
	got.Columns[0].Nullable = !got.Columns[0].Nullable
	again, err := s.GetSchema("t")
	require.NoError(t, err)
	assert.True(t, sch.Equal(again))

	require.NoError(t, s.Write(ctx, "t",
		testutil.KeyedFloatBatch(t, []string{"a"}, []float32{1})))
	after, err := s.GetSchema("t")
	require.NoError(t, err)
	assert.True(t, sch.Equal(after))
}

func TestList(t *testing.T) {
	s := newService(t)
	createFloatTable(t, s, "alpha")
	createFloatTable(t, s, "beta")

	tables := s.List()
	require.Len(t, tables, 2)
	assert.Contains(t, tables, "alpha")
	assert.Contains(t, tables, "beta")
}

func TestStats(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	createFloatTable(t, s, "t")

	require.NoError(t, s.Write(ctx, "t",
		testutil.KeyedFloatBatch(t, []string{"a", "b"}, []float32{1, 2})))
	require.NoError(t, s.Write(ctx, "t",
		testutil.KeyedFloatBatch(t, []string{"a", "c"}, []float32{10, 3})))

	stats, err := s.Stats("t")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Segments)
	assert.Equal(t, 4, stats.TotalRows)
	assert.Equal(t, 3, stats.Keys)
	assert.Equal(t, []uint64{1, 2}, stats.LiveRows)
}

func TestOpenReloadsTables(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	s, err := murr.New(root)
	require.NoError(t, err)
	sch := testutil.KeyedFloatSchema(t, false)
	require.NoError(t, s.Create(ctx, "t", sch))
	require.NoError(t, s.Write(ctx, "t",
		testutil.KeyedFloatBatch(t, []string{"a", "b"}, []float32{1, 2})))
	require.NoError(t, s.Close())

	reopened, err := murr.Open(ctx, root)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetSchema("t")
	require.NoError(t, err)
	assert.True(t, sch.Equal(got))

	batch, err := reopened.Read(ctx, "t", []string{"b"}, []string{"v"})
	require.NoError(t, err)
	assert.Equal(t, float32(2), floats(batch, 0).Value(0))
}

func TestMountMemoryDirectory(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	sch := testutil.KeyedFloatSchema(t, false)
	dir := directory.NewMemory()
	descriptor, err := sch.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, dir.Write(ctx, directory.SchemaFile, descriptor))

	require.NoError(t, s.Mount(ctx, "mem", dir))

	require.NoError(t, s.Write(ctx, "mem",
		testutil.KeyedFloatBatch(t, []string{"k"}, []float32{7})))
	batch, err := s.Read(ctx, "mem", []string{"k"}, []string{"v"})
	require.NoError(t, err)
	assert.Equal(t, float32(7), floats(batch, 0).Value(0))

	// Mounting over an existing name is rejected.
	require.ErrorIs(t, s.Mount(ctx, "mem", dir), murr.ErrAlreadyExists)
}

func TestSnapshotIsolation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	createFloatTable(t, s, "t")

	require.NoError(t, s.Write(ctx, "t",
		testutil.KeyedFloatBatch(t, []string{"a"}, []float32{1})))

	const readers = 8
	const writes = 20
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				batch, err := s.Read(ctx, "t", []string{"a"}, []string{"v"})
				if !assert.NoError(t, err) {
					return
				}
				// "a" is present in every segment generation, so the value
				// is never null regardless of which snapshot served it.
				assert.False(t, floats(batch, 0).Null(0))
			}
		}()
	}

	for i := 0; i < writes; i++ {
		require.NoError(t, s.Write(ctx, "t",
			testutil.KeyedFloatBatch(t,
				[]string{"a", fmt.Sprintf("k%d", i)},
				[]float32{float32(i), float32(i)})))
	}
	close(stop)
	wg.Wait()

	batch, err := s.Read(ctx, "t", []string{"a"}, []string{"v"})
	require.NoError(t, err)
	assert.Equal(t, float32(writes-1), floats(batch, 0).Value(0))
}

// failingOpenDir makes snapshot rebuilds fail a fixed number of times by
// refusing to open segment blobs, while writes keep succeeding.
type failingOpenDir struct {
	*directory.Memory
	mu       sync.Mutex
	failures int
}

func (d *failingOpenDir) Open(ctx context.Context, name string) (directory.Blob, error) {
	d.mu.Lock()
	if directory.IsSegmentName(name) && d.failures > 0 {
		d.failures--
		d.mu.Unlock()
		return nil, fmt.Errorf("injected open failure")
	}
	d.mu.Unlock()
	return d.Memory.Open(ctx, name)
}

func TestRebuildRetryPicksUpOrphanSegment(t *testing.T) {
	s, err := murr.New(t.TempDir(), murr.WithRebuildRetry(10*time.Millisecond, 10))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	sch := testutil.KeyedFloatSchema(t, false)
	dir := &failingOpenDir{Memory: directory.NewMemory(), failures: 2}
	descriptor, err := sch.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, dir.Write(ctx, directory.SchemaFile, descriptor))
	require.NoError(t, s.Mount(ctx, "t", dir))

	// The write commits its segment, then the rebuild fails.
	err = s.Write(ctx, "t", testutil.KeyedFloatBatch(t, []string{"a"}, []float32{1}))
	require.Error(t, err)

	// The background retry eventually rebuilds from the orphan segment.
	require.Eventually(t, func() bool {
		batch, err := s.Read(ctx, "t", []string{"a"}, []string{"v"})
		return err == nil && !floats(batch, 0).Null(0)
	}, 5*time.Second, 20*time.Millisecond)
}
