// Package murr is a columnar in-memory cache for batch scatter-gather
// feature retrieval: "give me columns X, Y, Z for these N keys."
//
// Tables are collections of immutable memory-mapped segment files. Writes
// append a segment and rebuild an immutable snapshot; reads run lock-free
// against the current snapshot's mapped memory and precomputed key index.
package murr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/murrdb/murr/directory"
	"github.com/murrdb/murr/model"
	"github.com/murrdb/murr/schema"
	"github.com/murrdb/murr/table"
)

// Service is the process-wide registry mapping table names to their
// current cached snapshots. Safe for concurrent use: reads share the
// registry lock only long enough to grab a snapshot reference, and
// writers serialize per table.
type Service struct {
	mu     sync.RWMutex
	tables map[string]*tableState

	root string
	opts options

	bg       context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// tableState is the per-table registry slot. snapshot is guarded by
// Service.mu; writeMu serializes the write-plus-rebuild composite.
type tableState struct {
	writeMu  sync.Mutex
	dir      directory.Directory
	schema   *schema.Table
	snapshot *table.Cached
	retrying atomic.Bool
}

// New creates an empty service. Tables created through Create get local
// directories under root.
func New(root string, opts ...Option) (*Service, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	bg, cancel := context.WithCancel(context.Background())
	return &Service{
		tables:   make(map[string]*tableState),
		root:     root,
		opts:     o,
		bg:       bg,
		bgCancel: cancel,
	}, nil
}

// Open creates a service and loads every table directory found under
// root. Tables with segments get a snapshot built immediately.
func Open(ctx context.Context, root string, opts ...Option) (*Service, error) {
	s, err := New(root, opts...)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir, err := directory.NewLocal(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
		if err := s.Mount(ctx, e.Name(), dir); err != nil {
			return nil, fmt.Errorf("loading table %q: %w", e.Name(), err)
		}
	}
	return s, nil
}

// Mount attaches a table stored in any directory implementation, loading
// its schema and, when segments exist, building a snapshot.
func (s *Service) Mount(ctx context.Context, name string, dir directory.Directory) error {
	ix, err := dir.Index(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	if ix.Schema == nil {
		return fmt.Errorf("%w: directory for %q holds no schema", ErrInvalidSchema, name)
	}

	var snap *table.Cached
	if len(ix.Segments) > 0 {
		snap, err = table.Open(ctx, dir, ix.Schema, ix.Segments)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	if _, exists := s.tables[name]; exists {
		s.mu.Unlock()
		if snap != nil {
			snap.Release()
		}
		return fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}
	s.tables[name] = &tableState{dir: dir, schema: ix.Schema, snapshot: snap}
	s.mu.Unlock()

	s.opts.logger.Info("mounted table", "table", name, "segments", len(ix.Segments))
	return nil
}

// Create registers a new empty table and materializes its schema
// descriptor through a local directory under the service root.
func (s *Service) Create(ctx context.Context, name string, sch *schema.Table) error {
	if name == "" {
		return fmt.Errorf("%w: empty table name", ErrInvalidSchema)
	}
	cloned := cloneSchema(sch)
	if err := cloned.Validate(); err != nil {
		return translateError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[name]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}

	dir, err := directory.NewLocal(filepath.Join(s.root, name))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	descriptor, err := json.Marshal(cloned)
	if err != nil {
		return err
	}
	if err := dir.Write(ctx, directory.SchemaFile, descriptor); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	s.tables[name] = &tableState{dir: dir, schema: cloned}
	s.opts.logger.Info("created table", "table", name)
	return nil
}

// Write validates the batch, encodes and publishes a new segment at the
// next id, then rebuilds the snapshot. Writes on one table are serialized;
// concurrent reads keep using the prior snapshot until the swap.
func (s *Service) Write(ctx context.Context, name string, batch *model.RecordBatch) error {
	state, err := s.state(name)
	if err != nil {
		return err
	}

	state.writeMu.Lock()
	defer state.writeMu.Unlock()

	data, err := table.BuildSegment(state.schema, batch)
	if err != nil {
		return translateError(err)
	}

	ix, err := state.dir.Index(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	segName := directory.SegmentName(ix.NextID())
	if err := state.dir.Write(ctx, segName, data); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	s.opts.logger.Info("wrote segment", "table", name, "segment", segName, "rows", batch.NumRows())

	// The segment is durable from here on. A rebuild failure leaves the
	// prior snapshot serving reads and the new segment on disk; the
	// background retry (when enabled) picks it up without caller action.
	if err := s.rebuild(ctx, name, state); err != nil {
		s.opts.logger.Error("rebuild failed after write", "table", name, "error", err)
		s.scheduleRetry(name, state)
		return err
	}
	return nil
}

// rebuild lists the directory, builds a fresh snapshot, and swaps it in
// under the registry lock. Readers holding the prior snapshot keep it
// alive until they release their references.
func (s *Service) rebuild(ctx context.Context, name string, state *tableState) error {
	ix, err := state.dir.Index(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	var snap *table.Cached
	if len(ix.Segments) > 0 {
		snap, err = table.Open(ctx, state.dir, state.schema, ix.Segments)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	old := state.snapshot
	state.snapshot = snap
	s.mu.Unlock()

	if old != nil {
		old.Release()
	}
	s.opts.logger.Info("rebuilt snapshot", "table", name, "segments", len(ix.Segments))
	return nil
}

// scheduleRetry starts at most one background rebuild loop per table,
// paced by the retry limiter.
func (s *Service) scheduleRetry(name string, state *tableState) {
	if s.opts.retryLimiter == nil || !state.retrying.CompareAndSwap(false, true) {
		return
	}
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		defer state.retrying.Store(false)
		for attempt := 1; attempt <= s.opts.retryAttempts; attempt++ {
			if err := s.opts.retryLimiter.Wait(s.bg); err != nil {
				return
			}
			state.writeMu.Lock()
			err := s.rebuild(s.bg, name, state)
			state.writeMu.Unlock()
			if err == nil {
				return
			}
			s.opts.logger.Warn("background rebuild failed", "table", name, "attempt", attempt, "error", err)
		}
	}()
}

// Read resolves keys against the current snapshot. The registry lock is
// held only to grab the snapshot reference; the fetch itself runs without
// any lock, purely against mapped memory and the precomputed index.
func (s *Service) Read(_ context.Context, name string, keys []string, columns []string) (*model.RecordBatch, error) {
	s.mu.RLock()
	state, ok := s.tables[name]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	snap := state.snapshot
	if snap != nil {
		snap.Retain()
	}
	sch := state.schema
	s.mu.RUnlock()

	if snap == nil {
		batch, err := table.EmptyBatch(sch, keys, columns)
		return batch, translateError(err)
	}
	defer snap.Release()

	batch, err := snap.Get(keys, columns)
	return batch, translateError(err)
}

// List returns the declared schema of every table.
func (s *Service) List() map[string]*schema.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*schema.Table, len(s.tables))
	for name, state := range s.tables {
		out[name] = cloneSchema(state.schema)
	}
	return out
}

// GetSchema returns the declared schema of one table.
func (s *Service) GetSchema(name string) (*schema.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return cloneSchema(state.schema), nil
}

// Stats returns the current snapshot's statistics. A table with no
// segments reports zero-valued stats.
func (s *Service) Stats(name string) (table.Stats, error) {
	s.mu.RLock()
	state, ok := s.tables[name]
	if !ok {
		s.mu.RUnlock()
		return table.Stats{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	snap := state.snapshot
	if snap != nil {
		snap.Retain()
	}
	s.mu.RUnlock()

	if snap == nil {
		return table.Stats{}, nil
	}
	defer snap.Release()
	return snap.Stats(), nil
}

// Close stops background work and releases every snapshot. Outstanding
// readers keep their snapshots alive until they release them.
func (s *Service) Close() error {
	s.bgCancel()
	s.bgWG.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.tables {
		if state.snapshot != nil {
			state.snapshot.Release()
			state.snapshot = nil
		}
	}
	return nil
}

func (s *Service) state(name string) (*tableState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return state, nil
}

func cloneSchema(t *schema.Table) *schema.Table {
	return &schema.Table{Key: t.Key, Columns: append([]schema.Column(nil), t.Columns...)}
}
