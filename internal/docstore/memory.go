package docstore

import (
	"context"
	"sort"
	"sync"
)

type memDoc struct {
	seq  uint64
	data Data
}

// MemoryStore is an in-process Store. Transactions are serialised by a
// single lock, which makes them trivially isolated.
type MemoryStore struct {
	mu          sync.Mutex
	seq         uint64
	collections map[string]map[string]*memDoc
	feed        ChangeFeed
}

// NewMemoryStore returns an empty store. A nil feed uses a LocalChangeFeed.
func NewMemoryStore(feed ChangeFeed) *MemoryStore {
	if feed == nil {
		feed = NewLocalChangeFeed()
	}
	return &MemoryStore{
		collections: make(map[string]map[string]*memDoc),
		feed:        feed,
	}
}

// Feed returns the change feed the store publishes on.
func (s *MemoryStore) Feed() ChangeFeed {
	return s.feed
}

func (s *MemoryStore) lookup(collection, id string) (*memDoc, bool) {
	d, ok := s.collections[collection][id]
	return d, ok
}

func (s *MemoryStore) put(collection, id string, data Data) {
	coll := s.collections[collection]
	if coll == nil {
		coll = make(map[string]*memDoc)
		s.collections[collection] = coll
	}
	if existing, ok := coll[id]; ok {
		existing.data = data
		return
	}
	s.seq++
	coll[id] = &memDoc{seq: s.seq, data: data}
}

func (s *MemoryStore) remove(collection, id string) {
	delete(s.collections[collection], id)
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	if err := validatePath(collection, id); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.lookup(collection, id)
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{Collection: collection, ID: id, Data: d.data.clone()}, nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	type entry struct {
		id string
		d  *memDoc
	}
	entries := make([]entry, 0, len(s.collections[q.Collection]))
	for id, d := range s.collections[q.Collection] {
		entries = append(entries, entry{id: id, d: d})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].d.seq < entries[j].d.seq })
	docs := make([]*Document, len(entries))
	for i, e := range entries {
		docs[i] = &Document{Collection: q.Collection, ID: e.id, Data: e.d.data.clone()}
	}
	s.mu.Unlock()

	return applyQuery(docs, q)
}

// Subscribe implements Store.
func (s *MemoryStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	return subscribe(ctx, q, s.feed, s.Query)
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, fields map[string]any, mergeFields bool) error {
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Set(collection, id, fields, mergeFields)
	})
}

// Add implements Store.
func (s *MemoryStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := NewID()
	if err := s.Set(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Update(collection, id, fields)
	})
}

// Delete implements Store. Deleting a missing document is not an error.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Delete(collection, id)
	})
}

// RunTransaction implements Store.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	tx := &memTx{store: s, pending: make(map[docKey]*Data)}
	if err := fn(ctx, tx); err != nil {
		s.mu.Unlock()
		return err
	}
	touched := tx.apply()
	s.mu.Unlock()

	publishAll(ctx, s.feed, touched)
	return nil
}

// Batch implements Store.
func (s *MemoryStore) Batch() Batch {
	return &memBatch{store: s}
}

type docKey struct {
	collection string
	id         string
}

// memTx stages writes; a nil *Data entry is a delete.
type memTx struct {
	store   *MemoryStore
	pending map[docKey]*Data
	order   []docKey
}

func (t *memTx) stage(k docKey, d *Data) {
	if _, ok := t.pending[k]; !ok {
		t.order = append(t.order, k)
	}
	t.pending[k] = d
}

func (t *memTx) current(collection, id string) (Data, bool) {
	if d, ok := t.pending[docKey{collection, id}]; ok {
		if d == nil {
			return nil, false
		}
		return *d, true
	}
	d, ok := t.store.lookup(collection, id)
	if !ok {
		return nil, false
	}
	return d.data, true
}

func (t *memTx) Get(collection, id string) (*Document, error) {
	if err := validatePath(collection, id); err != nil {
		return nil, err
	}
	d, ok := t.current(collection, id)
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{Collection: collection, ID: id, Data: d.clone()}, nil
}

func (t *memTx) Set(collection, id string, fields map[string]any, mergeFields bool) error {
	if err := validatePath(collection, id); err != nil {
		return err
	}
	data, err := DataOf(fields)
	if err != nil {
		return err
	}
	if mergeFields {
		if existing, ok := t.current(collection, id); ok {
			data = merge(existing, data)
		}
	}
	t.stage(docKey{collection, id}, &data)
	return nil
}

func (t *memTx) Update(collection, id string, fields map[string]any) error {
	if err := validatePath(collection, id); err != nil {
		return err
	}
	existing, ok := t.current(collection, id)
	if !ok {
		return ErrNotFound
	}
	data, err := DataOf(fields)
	if err != nil {
		return err
	}
	merged := merge(existing, data)
	t.stage(docKey{collection, id}, &merged)
	return nil
}

func (t *memTx) Delete(collection, id string) error {
	if err := validatePath(collection, id); err != nil {
		return err
	}
	t.stage(docKey{collection, id}, nil)
	return nil
}

func (t *memTx) apply() map[string]struct{} {
	touched := make(map[string]struct{})
	for _, k := range t.order {
		d := t.pending[k]
		if d == nil {
			t.store.remove(k.collection, k.id)
		} else {
			t.store.put(k.collection, k.id, *d)
		}
		touched[k.collection] = struct{}{}
	}
	return touched
}

type memBatch struct {
	store   *MemoryStore
	deletes []docKey
}

func (b *memBatch) Delete(collection, id string) {
	b.deletes = append(b.deletes, docKey{collection, id})
}

func (b *memBatch) Len() int {
	return len(b.deletes)
}

func (b *memBatch) Commit(ctx context.Context) error {
	if len(b.deletes) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	return b.store.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		for _, k := range b.deletes {
			if err := tx.Delete(k.collection, k.id); err != nil {
				return err
			}
		}
		return nil
	})
}
