package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/MCT-Salman/invocca/internal/model"
	"github.com/MCT-Salman/invocca/pkg/types"
)

// PostgreSQL error codes mapped to store sentinels.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	sb sq.StatementBuilderType

	halls       *pgTable[types.Hall]
	services    *pgTable[types.Service]
	events      *pgTable[types.Event]
	invitations *pgTable[types.Invitation]
	templates   *pgTable[types.Template]
	reports     *pgTable[types.Report]
	ratings     *pgTable[types.Rating]
}

// NewPostgresStore creates a store on db using $n placeholders.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	s := &PostgresStore{db: db, sb: sb}
	s.halls = newPGTable(db, sb, hallTable)
	s.services = newPGTable(db, sb, serviceTable)
	s.events = newPGTable(db, sb, eventTable)
	s.events.beforeUpdate = s.guardEventCapacity
	s.invitations = newPGTable(db, sb, invitationTable)
	s.invitations.beforeCreate = s.guardGuestCeiling
	s.invitations.beforeUpdate = s.guardGuestCeiling
	s.templates = newPGTable(db, sb, templateTable)
	s.reports = newPGTable(db, sb, reportTable)
	s.ratings = newPGTable(db, sb, ratingTable)
	return s
}

// Ping verifies that the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Halls() Table[types.Hall]             { return s.halls }
func (s *PostgresStore) Services() Table[types.Service]       { return s.services }
func (s *PostgresStore) Events() Table[types.Event]           { return s.events }
func (s *PostgresStore) Invitations() Table[types.Invitation] { return s.invitations }
func (s *PostgresStore) Templates() Table[types.Template]     { return s.templates }
func (s *PostgresStore) Reports() Table[types.Report]         { return s.reports }
func (s *PostgresStore) Ratings() Table[types.Rating]         { return s.ratings }

type rowScanner interface {
	Scan(dest ...any) error
}

// pgTable is the squirrel-backed Table for one resource. The hooks run
// inside the write transaction, after the target row is locked.
type pgTable[S any] struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	def tableDef[S]

	beforeCreate func(ctx context.Context, tx *sql.Tx, rec model.Record[S]) error
	beforeUpdate func(ctx context.Context, tx *sql.Tx, rec model.Record[S]) error
}

func newPGTable[S any](db *sql.DB, sb sq.StatementBuilderType, def tableDef[S]) *pgTable[S] {
	return &pgTable[S]{db: db, sb: sb, def: def}
}

func (t *pgTable[S]) selectColumns() []string {
	cols := append([]string{"id"}, t.def.columns()...)
	return append(cols, "created_at", "updated_at")
}

func (t *pgTable[S]) scan(row rowScanner) (model.Record[S], error) {
	var rec model.Record[S]
	dest := append([]any{&rec.ID}, t.def.refs(&rec.Spec)...)
	dest = append(dest, &rec.CreatedAt, &rec.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return model.Record[S]{}, err
	}
	return rec, nil
}

func (t *pgTable[S]) where(filters map[string]string) (sq.Eq, error) {
	eq := sq.Eq{}
	for key, value := range filters {
		f, ok := t.def.filterField(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, key)
		}
		eq[f.column] = value
	}
	return eq, nil
}

// List retrieves a paginated, filtered page of records.
func (t *pgTable[S]) List(ctx context.Context, opts ListOptions) ([]model.Record[S], int, error) {
	eq, err := t.where(opts.Filters)
	if err != nil {
		return nil, 0, err
	}

	countSQL, countArgs, err := t.sb.Select("COUNT(*)").From(t.def.table).Where(eq).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building %s count query: %w", t.def.resource, err)
	}

	var total int
	if err := t.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting %s: %w", t.def.resource, err)
	}
	if total == 0 {
		return []model.Record[S]{}, 0, nil
	}

	query := t.sb.
		Select(t.selectColumns()...).
		From(t.def.table).
		Where(eq).
		OrderBy("created_at DESC", "id").
		Offset(uint64(max(opts.Offset, 0)))
	if opts.Limit > 0 {
		query = query.Limit(uint64(opts.Limit))
	}

	dataSQL, dataArgs, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building %s list query: %w", t.def.resource, err)
	}

	rows, err := t.db.QueryContext(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing %s: %w", t.def.resource, err)
	}
	defer rows.Close()

	items := make([]model.Record[S], 0, min(total, max(opts.Limit, 1)))
	for rows.Next() {
		rec, err := t.scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning %s row: %w", t.def.resource, err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating %s rows: %w", t.def.resource, err)
	}
	return items, total, nil
}

// Get retrieves a single record by ID.
func (t *pgTable[S]) Get(ctx context.Context, id string) (model.Record[S], error) {
	sqlStr, args, err := t.sb.Select(t.selectColumns()...).From(t.def.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return model.Record[S]{}, fmt.Errorf("building %s get query: %w", t.def.resource, err)
	}

	rec, err := t.scan(t.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Record[S]{}, ErrNotFound
		}
		return model.Record[S]{}, fmt.Errorf("querying %s %q: %w", t.def.resource, id, err)
	}
	return rec, nil
}

// Create inserts rec and returns it with identity and timestamps set.
func (t *pgTable[S]) Create(ctx context.Context, rec model.Record[S]) (model.Record[S], error) {
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	ts := now()
	rec.CreatedAt, rec.UpdatedAt = ts, ts

	err := t.inTx(ctx, func(tx *sql.Tx) error {
		if t.beforeCreate != nil {
			if err := t.beforeCreate(ctx, tx, rec); err != nil {
				return err
			}
		}

		values := append([]any{rec.ID}, t.def.refs(&rec.Spec)...)
		values = append(values, rec.CreatedAt, rec.UpdatedAt)
		sqlStr, args, err := t.sb.Insert(t.def.table).Columns(t.selectColumns()...).Values(values...).ToSql()
		if err != nil {
			return fmt.Errorf("building %s insert: %w", t.def.resource, err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return translateWriteError(fmt.Errorf("inserting %s: %w", t.def.resource, err))
		}
		return nil
	})
	if err != nil {
		return model.Record[S]{}, err
	}
	return rec, nil
}

// Update replaces the spec columns of an existing record.
func (t *pgTable[S]) Update(ctx context.Context, rec model.Record[S]) (model.Record[S], error) {
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		lockSQL, lockArgs, err := t.sb.Select("created_at").From(t.def.table).
			Where(sq.Eq{"id": rec.ID}).Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return fmt.Errorf("building %s lock query: %w", t.def.resource, err)
		}
		if err := tx.QueryRowContext(ctx, lockSQL, lockArgs...).Scan(&rec.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("locking %s %q: %w", t.def.resource, rec.ID, err)
		}

		if t.beforeUpdate != nil {
			if err := t.beforeUpdate(ctx, tx, rec); err != nil {
				return err
			}
		}

		rec.UpdatedAt = now()
		query := t.sb.Update(t.def.table).Where(sq.Eq{"id": rec.ID}).Set("updated_at", rec.UpdatedAt)
		for i, ref := range t.def.refs(&rec.Spec) {
			query = query.Set(t.def.fields[i].column, ref)
		}
		sqlStr, args, err := query.ToSql()
		if err != nil {
			return fmt.Errorf("building %s update: %w", t.def.resource, err)
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return translateWriteError(fmt.Errorf("updating %s %q: %w", t.def.resource, rec.ID, err))
		}
		return nil
	})
	if err != nil {
		return model.Record[S]{}, err
	}
	return rec, nil
}

// Delete removes a record by ID.
func (t *pgTable[S]) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := t.sb.Delete(t.def.table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building %s delete: %w", t.def.resource, err)
	}

	res, err := t.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return fmt.Errorf("%w: %s %q", ErrInUse, t.def.resource, id)
		}
		return fmt.Errorf("deleting %s %q: %w", t.def.resource, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading %s delete result: %w", t.def.resource, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTable[S]) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting %s transaction: %w", t.def.resource, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translateWriteError(fmt.Errorf("committing %s transaction: %w", t.def.resource, err))
	}
	return nil
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}

func translateWriteError(err error) error {
	switch pqCode(err) {
	case pqUniqueViolation:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case pqForeignKeyViolation:
		return fmt.Errorf("%w: %v", ErrReference, err)
	default:
		return err
	}
}
