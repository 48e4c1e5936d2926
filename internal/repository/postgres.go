// internal/repository/postgres.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/draftdesk/internal/errors"
	"github.com/unclebandit/draftdesk/internal/model"
)

const itemColumns = `id, kind, status, content, metadata, version, created_at, updated_at,
	dispatch_attempts, last_error, next_attempt_at, dispatched_at, external_ref, reviewed_by, seq`

// PostgresStore implements ContentStore on a content_items table.
type PostgresStore struct {
	DB   *sql.DB
	opts options
}

func NewPostgresStore(db *sql.DB, opts ...Option) *PostgresStore {
	return &PostgresStore{DB: db, opts: buildOptions(opts)}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*model.ContentItem, error) {
	var (
		item          model.ContentItem
		meta          []byte
		nextAttemptAt sql.NullTime
		dispatchedAt  sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.Kind, &item.Status, &item.Content, &meta, &item.Version,
		&item.CreatedAt, &item.UpdatedAt, &item.DispatchAttempts, &item.LastError,
		&nextAttemptAt, &dispatchedAt, &item.ExternalRef, &item.ReviewedBy, &item.Seq,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &item.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", item.ID, err)
		}
	}
	if nextAttemptAt.Valid {
		t := nextAttemptAt.Time
		item.NextAttemptAt = &t
	}
	if dispatchedAt.Valid {
		t := dispatchedAt.Time
		item.DispatchedAt = &t
	}
	return &item, nil
}

func (r *PostgresStore) Create(ctx context.Context, item *model.ContentItem) (*model.ContentItem, error) {
	in := item.Clone()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	now := r.opts.now()

	query := `
        INSERT INTO content_items
        (id, kind, status, content, metadata, version, created_at, updated_at,
         dispatch_attempts, last_error, next_attempt_at, dispatched_at, external_ref, reviewed_by)
        VALUES ($1, $2, $3, $4, $5, 0, $6, $6, $7, $8, $9, $10, $11, $12)
        RETURNING ` + itemColumns
	row := r.DB.QueryRowContext(ctx, query,
		in.ID, in.Kind, in.Status, in.Content, meta, now,
		in.DispatchAttempts, in.LastError, in.NextAttemptAt, in.DispatchedAt, in.ExternalRef, in.ReviewedBy,
	)
	created, err := scanItem(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("item %s already exists", in.ID)
		}
		return nil, err
	}
	return created, nil
}

func (r *PostgresStore) Get(ctx context.Context, id string) (*model.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items WHERE id=$1`
	item, err := scanItem(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound(id)
		}
		return nil, err
	}
	return item, nil
}

// Put is a single conditional UPDATE; the WHERE clause on version is the compare-and-set.
func (r *PostgresStore) Put(ctx context.Context, item *model.ContentItem, expectedVersion int64) (*model.ContentItem, error) {
	query := `
        UPDATE content_items
        SET status=$3, content=$4, dispatch_attempts=$5, last_error=$6, next_attempt_at=$7,
            dispatched_at=$8, external_ref=$9, reviewed_by=$10, version=version+1, updated_at=$11
        WHERE id=$1 AND version=$2
        RETURNING ` + itemColumns
	row := r.DB.QueryRowContext(ctx, query,
		item.ID, expectedVersion,
		item.Status, item.Content, item.DispatchAttempts, item.LastError, item.NextAttemptAt,
		item.DispatchedAt, item.ExternalRef, item.ReviewedBy, r.opts.now(),
	)
	updated, err := scanItem(row)
	if err == nil {
		return updated, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	var current int64
	err = r.DB.QueryRowContext(ctx, `SELECT version FROM content_items WHERE id=$1`, item.ID).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound(item.ID)
		}
		return nil, err
	}
	return nil, appErrors.NewVersionConflict(item.ID, expectedVersion, current)
}

func (r *PostgresStore) List(ctx context.Context, filter ListFilter) (*Page, error) {
	after, err := DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, err
	}
	limit := filter.limit()

	query := `SELECT ` + itemColumns + ` FROM content_items WHERE seq > $1`
	args := []interface{}{after}
	argPos := 2

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argPos)
		args = append(args, pq.Array(statuses))
		argPos++
	}
	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind=$%d", argPos)
		args = append(args, filter.Kind)
		argPos++
	}
	// fetch one extra row to learn whether another page exists
	query += fmt.Sprintf(" ORDER BY seq ASC LIMIT $%d", argPos)
	args = append(args, limit+1)

	items, err := r.queryItems(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	page := &Page{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = EncodeCursor(page.Items[limit-1].Seq)
	}
	return page, nil
}

func (r *PostgresStore) ListDue(ctx context.Context, filter DueFilter) ([]*model.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items
        WHERE (next_attempt_at IS NULL OR next_attempt_at <= $4)
          AND (status = $1 OR (status = $2 AND dispatch_attempts < $3))
        ORDER BY seq ASC`
	args := []interface{}{model.StatusApproved, model.StatusFailed, filter.MaxAttempts, filter.Now}
	if filter.Limit > 0 {
		query += " LIMIT $5"
		args = append(args, filter.Limit)
	}
	return r.queryItems(ctx, query, args...)
}

func (r *PostgresStore) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM content_items GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Status]int, len(model.AllStatuses))
	for _, status := range model.AllStatuses {
		counts[status] = 0
	}
	for rows.Next() {
		var status model.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *PostgresStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]*model.ContentItem, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.ContentItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

var _ ContentStore = (*PostgresStore)(nil)
