package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/MCT-Salman/invocca/internal/model"
	"github.com/MCT-Salman/invocca/pkg/capacity"
	"github.com/MCT-Salman/invocca/pkg/types"
)

// guardGuestCeiling locks the parent event and checks the invitation's
// guest count against the live sum of its siblings.
func (s *PostgresStore) guardGuestCeiling(ctx context.Context, tx *sql.Tx, rec model.Record[types.Invitation]) error {
	eventID := rec.Spec.EventID

	lockSQL, lockArgs, err := s.sb.Select("guest_capacity").From(eventTable.table).
		Where(sq.Eq{"id": eventID}).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return fmt.Errorf("building event lock query: %w", err)
	}

	var ceiling int
	if err := tx.QueryRowContext(ctx, lockSQL, lockArgs...).Scan(&ceiling); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: event %q", ErrReference, eventID)
		}
		return fmt.Errorf("locking event %q: %w", eventID, err)
	}

	sumSQL, sumArgs, err := s.sb.
		Select("COALESCE(SUM(num_of_people), 0)").
		Column(sq.Expr("COALESCE(SUM(num_of_people) FILTER (WHERE id = ?), 0)", rec.ID)).
		From(invitationTable.table).
		Where(sq.Eq{"event_id": eventID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building guest sum query: %w", err)
	}

	var snap capacity.Snapshot
	snap.Ceiling = ceiling
	if err := tx.QueryRowContext(ctx, sumSQL, sumArgs...).Scan(&snap.Used, &snap.Previous); err != nil {
		return fmt.Errorf("summing guests for event %q: %w", eventID, err)
	}
	return capacity.Check(snap, rec.Spec.NumOfPeople)
}

// guardEventCapacity rejects shrinking an event below its invited guests.
func (s *PostgresStore) guardEventCapacity(ctx context.Context, tx *sql.Tx, rec model.Record[types.Event]) error {
	sqlStr, args, err := s.sb.Select("COALESCE(SUM(num_of_people), 0)").From(invitationTable.table).
		Where(sq.Eq{"event_id": rec.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("building guest sum query: %w", err)
	}

	var booked int
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&booked); err != nil {
		return fmt.Errorf("summing guests for event %q: %w", rec.ID, err)
	}
	if rec.Spec.GuestCapacity < booked {
		return fmt.Errorf("%w: %d guests already invited", ErrBelowBooked, booked)
	}
	return nil
}

// Dashboard aggregates counts visible within scope.
func (s *PostgresStore) Dashboard(ctx context.Context, scope model.Scope) (types.Dashboard, error) {
	dash := types.Dashboard{Events: map[string]int{}}

	halls := sq.And{}
	if scope.ManagerID != "" {
		halls = append(halls, sq.Eq{"h.manager_id": scope.ManagerID})
	}
	hallSQL, hallArgs, err := s.sb.
		Select("COUNT(*)", "COUNT(*) FILTER (WHERE h.active)").
		From(hallTable.table + " h").
		Where(halls).
		ToSql()
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("building hall summary: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, hallSQL, hallArgs...).Scan(&dash.Halls, &dash.ActiveHalls); err != nil {
		return types.Dashboard{}, fmt.Errorf("summarising halls: %w", err)
	}

	events := eventScope(scope)
	evSQL, evArgs, err := s.sb.
		Select("e.status", "COUNT(*)").
		From(eventTable.table + " e").
		Join(hallTable.table + " h ON h.id = e.hall_id").
		Where(events).
		GroupBy("e.status").
		ToSql()
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("building event summary: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, evSQL, evArgs...)
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("summarising events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return types.Dashboard{}, fmt.Errorf("scanning event summary: %w", err)
		}
		dash.Events[status] = n
	}
	if err := rows.Err(); err != nil {
		return types.Dashboard{}, fmt.Errorf("iterating event summary: %w", err)
	}

	invSQL, invArgs, err := s.sb.
		Select("COUNT(i.id)", "COALESCE(SUM(i.num_of_people), 0)").
		From(invitationTable.table + " i").
		Join(eventTable.table + " e ON e.id = i.event_id").
		Join(hallTable.table + " h ON h.id = e.hall_id").
		Where(events).
		ToSql()
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("building invitation summary: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, invSQL, invArgs...).Scan(&dash.Invitations, &dash.Guests); err != nil {
		return types.Dashboard{}, fmt.Errorf("summarising invitations: %w", err)
	}

	repSQL, repArgs, err := s.sb.
		Select("COUNT(*)").
		From(reportTable.table + " r").
		Join(hallTable.table + " h ON h.id = r.hall_id").
		Where(append(halls, sq.Eq{"r.status": types.ReportStatusOpen})).
		ToSql()
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("building report summary: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, repSQL, repArgs...).Scan(&dash.OpenReports); err != nil {
		return types.Dashboard{}, fmt.Errorf("summarising reports: %w", err)
	}

	ratings := append(sq.And{}, halls...)
	if scope.ClientID != "" {
		ratings = append(ratings, sq.Eq{"r.client_id": scope.ClientID})
	}
	ratSQL, ratArgs, err := s.sb.
		Select("COUNT(*)", "COALESCE(AVG(r.score), 0)").
		From(ratingTable.table + " r").
		Join(hallTable.table + " h ON h.id = r.hall_id").
		Where(ratings).
		ToSql()
	if err != nil {
		return types.Dashboard{}, fmt.Errorf("building rating summary: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, ratSQL, ratArgs...).Scan(&dash.Ratings, &dash.AverageRating); err != nil {
		return types.Dashboard{}, fmt.Errorf("summarising ratings: %w", err)
	}

	return dash, nil
}

func eventScope(scope model.Scope) sq.And {
	where := sq.And{}
	if scope.ManagerID != "" {
		where = append(where, sq.Eq{"h.manager_id": scope.ManagerID})
	}
	if scope.ClientID != "" {
		where = append(where, sq.Eq{"e.client_id": scope.ClientID})
	}
	return where
}
