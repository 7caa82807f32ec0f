// Package postgres archives generated content records so queued posts
// survive restarts and stay queryable after the in-memory queue is
// cleared. Implements registry.ArchiveSink.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/registry"
)

const recordsTable = "content_records"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store persists content records using PostgreSQL.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

var _ registry.ArchiveSink = (*Store)(nil)

// New creates a store over an open database connection. opTimeout bounds
// every statement; zero disables the per-op deadline.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS content_records (
    id               UUID PRIMARY KEY,
    domain           TEXT NOT NULL,
    category         TEXT NOT NULL DEFAULT '',
    topic            TEXT NOT NULL DEFAULT '',
    title            TEXT NOT NULL,
    body             TEXT NOT NULL,
    meta_description TEXT NOT NULL DEFAULT '',
    keywords         TEXT[] NOT NULL DEFAULT '{}',
    images           JSONB NOT NULL DEFAULT '[]',
    created_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS content_records_domain_created_idx
    ON content_records (domain, created_at DESC);
`

// EnsureSchema creates the records table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRecord inserts one record. Returns registry.ErrDuplicateRecord
// when the record ID is already archived.
func (s *Store) SaveRecord(ctx context.Context, rec domain.ContentRecord) error {
	images, err := json.Marshal(rec.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}

	query, args, err := psql.Insert(recordsTable).
		Columns("id", "domain", "category", "topic", "title", "body",
			"meta_description", "keywords", "images", "created_at").
		Values(rec.ID, rec.Domain, rec.Category, rec.Topic, rec.Title, rec.Body,
			rec.MetaDescription, pq.Array(rec.Keywords), images, rec.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKeyError(err) {
			return registry.ErrDuplicateRecord
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// ListRecords returns a domain's archived records, newest first.
func (s *Store) ListRecords(ctx context.Context, domainName string, limit, offset int) ([]domain.ContentRecord, error) {
	query, args, err := psql.Select("id", "domain", "category", "topic", "title", "body",
		"meta_description", "keywords", "images", "created_at").
		From(recordsTable).
		Where(sq.Eq{"domain": domainName}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var result []domain.ContentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetRecord fetches one record by ID. Returns sql.ErrNoRows when absent.
func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (domain.ContentRecord, error) {
	query, args, err := psql.Select("id", "domain", "category", "topic", "title", "body",
		"meta_description", "keywords", "images", "created_at").
		From(recordsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("build select: %w", err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("query record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.ContentRecord{}, err
		}
		return domain.ContentRecord{}, sql.ErrNoRows
	}
	return scanRecord(rows)
}

// CountToday returns how many records a domain archived since the given
// day start. Used to rebuild the daily cap counter after a restart.
func (s *Store) CountToday(ctx context.Context, domainName string, dayStart time.Time) (int, error) {
	query, args, err := psql.Select("COUNT(*)").
		From(recordsTable).
		Where(sq.Eq{"domain": domainName}).
		Where(sq.GtOrEq{"created_at": dayStart}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// DeleteRecordsBefore prunes records older than cutoff, at most limit
// rows per call. Returns the number of rows deleted. Implements
// retention.Store.
func (s *Store) DeleteRecordsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	// Postgres DELETE has no LIMIT; bound the batch via a subquery.
	query, args, err := psql.Delete(recordsTable).
		Where(sq.Expr("id IN (SELECT id FROM "+recordsTable+" WHERE created_at < ? ORDER BY created_at LIMIT ?)", cutoff, limit)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func scanRecord(rows *sql.Rows) (domain.ContentRecord, error) {
	var rec domain.ContentRecord
	var keywords pq.StringArray
	var images []byte

	err := rows.Scan(
		&rec.ID,
		&rec.Domain,
		&rec.Category,
		&rec.Topic,
		&rec.Title,
		&rec.Body,
		&rec.MetaDescription,
		&keywords,
		&images,
		&rec.CreatedAt,
	)
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Keywords = keywords
	if len(images) > 0 {
		if err := json.Unmarshal(images, &rec.Images); err != nil {
			return domain.ContentRecord{}, fmt.Errorf("unmarshal images: %w", err)
		}
	}
	return rec, nil
}

// isDuplicateKeyError reports a PostgreSQL unique violation (class 23505).
func isDuplicateKeyError(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
