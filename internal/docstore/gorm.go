package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"petpals/internal/observability"
)

// TimestampField is the document field mirrored into the indexed sort_ts
// column so timestamp-ordered, unfiltered queries can be served by SQL.
const TimestampField = "timestamp"

// DocumentRow is the table backing GormStore.
type DocumentRow struct {
	Collection string    `gorm:"primaryKey;size:255;index:idx_documents_collection_ts,priority:1"`
	DocID      string    `gorm:"primaryKey;size:128;column:doc_id"`
	Data       string    `gorm:"type:text;not null"`
	SortTS     int64     `gorm:"index:idx_documents_collection_ts,priority:2;column:sort_ts"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

// TableName specifies the table name for GORM.
func (DocumentRow) TableName() string {
	return "documents"
}

// GormStore is a Store persisted in a single SQL table.
type GormStore struct {
	db      *gorm.DB
	feed    ChangeFeed
	logger  *observability.StoreLogger
	metrics *observability.StoreMetrics
}

// NewGormStore wraps db. A nil feed uses a LocalChangeFeed.
func NewGormStore(db *gorm.DB, feed ChangeFeed) *GormStore {
	if feed == nil {
		feed = NewLocalChangeFeed()
	}
	return &GormStore{
		db:      db,
		feed:    feed,
		logger:  observability.NewStoreLogger("sql"),
		metrics: observability.NewStoreMetrics("sql"),
	}
}

// Migrate creates the documents table.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&DocumentRow{})
}

func rowToDocument(r *DocumentRow) (*Document, error) {
	data, err := decodeData([]byte(r.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", r.Collection, r.DocID, err)
	}
	return &Document{Collection: r.Collection, ID: r.DocID, Data: data}, nil
}

func newRow(collection, id string, data Data) (*DocumentRow, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	ts, _ := numberField(data, TimestampField)
	return &DocumentRow{Collection: collection, DocID: id, Data: string(b), SortTS: ts}, nil
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := validatePath(collection, id); err != nil {
		return nil, err
	}
	ctx, span := observability.GetTraceLayer().TraceStoreOperation(ctx, "sql", "get", collection)
	defer span.End()
	defer s.metrics.TrackQuery("get", collection)()
	s.logger.LogRead(ctx, "get", collection, map[string]any{"id": id})

	var row DocumentRow
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.LogError(ctx, err, "get", collection)
		return nil, err
	}
	return rowToDocument(&row)
}

// pushdown reports whether q can be ordered and limited entirely in SQL.
func pushdown(q Query) bool {
	return len(q.Filters) == 0 && (q.OrderBy == "" || q.OrderBy == TimestampField)
}

// Query implements Store. Filters are evaluated after decoding, so a
// filtered query scans the whole collection.
func (s *GormStore) Query(ctx context.Context, q Query) ([]*Document, error) {
	ctx, span := observability.GetTraceLayer().TraceStoreOperation(ctx, "sql", "query", q.Collection)
	defer span.End()
	defer s.metrics.TrackQuery("query", q.Collection)()
	s.logger.LogRead(ctx, "query", q.Collection, map[string]any{"filters": len(q.Filters), "limit": q.Limit})

	tx := s.db.WithContext(ctx).Where("collection = ?", q.Collection)
	direct := pushdown(q)
	if direct && q.OrderBy == TimestampField {
		dir := "ASC"
		if q.Direction == Descending {
			dir = "DESC"
		}
		tx = tx.Order("sort_ts " + dir)
	}
	tx = tx.Order("created_at ASC").Order("doc_id ASC")
	if direct && q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []DocumentRow
	if err := tx.Find(&rows).Error; err != nil {
		s.logger.LogError(ctx, err, "query", q.Collection)
		return nil, err
	}

	docs := make([]*Document, 0, len(rows))
	for i := range rows {
		d, err := rowToDocument(&rows[i])
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if direct {
		return docs, nil
	}
	return applyQuery(docs, q)
}

// Subscribe implements Store.
func (s *GormStore) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	return subscribe(ctx, q, s.feed, s.Query)
}

// Set implements Store.
func (s *GormStore) Set(ctx context.Context, collection, id string, fields map[string]any, mergeFields bool) error {
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Set(collection, id, fields, mergeFields)
	})
}

// Add implements Store.
func (s *GormStore) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := NewID()
	if err := s.Set(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

// Update implements Store.
func (s *GormStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Update(collection, id, fields)
	})
}

// Delete implements Store.
func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		return tx.Delete(collection, id)
	})
}

// RunTransaction implements Store. Rows read through the Tx are locked
// FOR UPDATE on databases that support it.
func (s *GormStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	defer s.metrics.TrackQuery("transaction", "")()
	gtx := &gormTx{touched: make(map[string]struct{})}
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		gtx.db = db
		return fn(ctx, gtx)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.LogError(ctx, err, "transaction", "")
		}
		return err
	}
	for c := range gtx.touched {
		s.logger.LogWrite(ctx, "commit", c, nil)
	}
	publishAll(ctx, s.feed, gtx.touched)
	return nil
}

// Batch implements Store.
func (s *GormStore) Batch() Batch {
	return &gormBatch{store: s}
}

type gormTx struct {
	db      *gorm.DB
	touched map[string]struct{}
}

func (t *gormTx) load(collection, id string) (*DocumentRow, error) {
	var row DocumentRow
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &row, err
}

func (t *gormTx) Get(collection, id string) (*Document, error) {
	if err := validatePath(collection, id); err != nil {
		return nil, err
	}
	row, err := t.load(collection, id)
	if err != nil {
		return nil, err
	}
	return rowToDocument(row)
}

func (t *gormTx) upsert(collection, id string, data Data) error {
	row, err := newRow(collection, id, data)
	if err != nil {
		return err
	}
	t.touched[collection] = struct{}{}
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "doc_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "sort_ts", "updated_at"}),
	}).Create(row).Error
}

func (t *gormTx) Set(collection, id string, fields map[string]any, mergeFields bool) error {
	if err := validatePath(collection, id); err != nil {
		return err
	}
	data, err := DataOf(fields)
	if err != nil {
		return err
	}
	if mergeFields {
		existing, err := t.Get(collection, id)
		switch {
		case err == nil:
			data = merge(existing.Data, data)
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}
	return t.upsert(collection, id, data)
}

func (t *gormTx) Update(collection, id string, fields map[string]any) error {
	existing, err := t.Get(collection, id)
	if err != nil {
		return err
	}
	data, err := DataOf(fields)
	if err != nil {
		return err
	}
	return t.upsert(collection, id, merge(existing.Data, data))
}

func (t *gormTx) Delete(collection, id string) error {
	if err := validatePath(collection, id); err != nil {
		return err
	}
	t.touched[collection] = struct{}{}
	return t.db.Where("collection = ? AND doc_id = ?", collection, id).Delete(&DocumentRow{}).Error
}

type gormBatch struct {
	store   *GormStore
	deletes []docKey
}

func (b *gormBatch) Delete(collection, id string) {
	b.deletes = append(b.deletes, docKey{collection, id})
}

func (b *gormBatch) Len() int {
	return len(b.deletes)
}

func (b *gormBatch) Commit(ctx context.Context) error {
	if len(b.deletes) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	byCollection := make(map[string][]string)
	for _, k := range b.deletes {
		byCollection[k.collection] = append(byCollection[k.collection], k.id)
	}
	return b.store.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		gtx := tx.(*gormTx)
		for collection, ids := range byCollection {
			gtx.touched[collection] = struct{}{}
			err := gtx.db.Where("collection = ? AND doc_id IN ?", collection, ids).Delete(&DocumentRow{}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}
