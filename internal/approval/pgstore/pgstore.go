// Package pgstore provides a PostgreSQL implementation of approval.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/threatwatch/internal/approval"
)

var tracer = otel.Tracer("github.com/linnemanlabs/threatwatch/internal/approval/pgstore")

//go:embed schema.sql
var schema string

// Store persists approval states in PostgreSQL. The expected-prior-status
// check in Update rides on a conditional write, so two processes racing on
// the same threat resolve to exactly one winner inside the database.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const stateColumns = `threat_id, status, ref, priority, posted_at, decided_at, edited_text, published_ref`

// Get retrieves the approval state for a threat ID.
func (s *Store) Get(ctx context.Context, threatID string) (*approval.State, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + stateColumns + ` FROM approval_states WHERE threat_id = $1`
	st, err := scanState(s.pool.QueryRow(ctx, query, threatID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if st == nil {
		return nil, false, nil
	}
	return st, true, nil
}

// List returns all approval states, ordered by threat ID.
func (s *Store) List(ctx context.Context) ([]*approval.State, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+stateColumns+` FROM approval_states ORDER BY threat_id`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	var out []*approval.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return out, nil
}

// Update persists next if and only if the stored status equals expect (an
// absent row counts as not_posted). Returns approval.ErrConflict when the
// precondition fails.
func (s *Store) Update(ctx context.Context, next *approval.State, expect approval.Status) error {
	ctx, span := tracer.Start(ctx, "pgstore.Update", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
		attribute.String("threatwatch.approval.expect", string(expect)),
	))
	defer span.End()

	var err error

	if expect == approval.StatusNotPosted {
		// Insert wins only when no row exists or the existing row is
		// still not_posted.
		query := `INSERT INTO approval_states (` + stateColumns + `, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
			ON CONFLICT (threat_id) DO UPDATE SET
				status = EXCLUDED.status, ref = EXCLUDED.ref, priority = EXCLUDED.priority,
				posted_at = EXCLUDED.posted_at, decided_at = EXCLUDED.decided_at,
				edited_text = EXCLUDED.edited_text, published_ref = EXCLUDED.published_ref,
				updated_at = now()
			WHERE approval_states.status = $9`
		ct, execErr := s.pool.Exec(ctx, query,
			next.ThreatID, string(next.Status), next.Ref, next.Priority,
			nullTime(next.PostedAt), nullTime(next.DecidedAt), next.EditedText, next.PublishedRef,
			string(expect),
		)
		err = execErr
		if err == nil && ct.RowsAffected() != 1 {
			err = approval.ErrConflict
		}
	} else {
		query := `UPDATE approval_states SET
				status = $2, ref = $3, priority = $4, posted_at = $5,
				decided_at = $6, edited_text = $7, published_ref = $8, updated_at = now()
			WHERE threat_id = $1 AND status = $9`
		ct, execErr := s.pool.Exec(ctx, query,
			next.ThreatID, string(next.Status), next.Ref, next.Priority,
			nullTime(next.PostedAt), nullTime(next.DecidedAt), next.EditedText, next.PublishedRef,
			string(expect),
		)
		err = execErr
		if err == nil && ct.RowsAffected() != 1 {
			err = approval.ErrConflict
		}
	}

	if err != nil {
		if !errors.Is(err, approval.ErrConflict) {
			err = fmt.Errorf("update state: %w", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Put upserts next without a status precondition.
func (s *Store) Put(ctx context.Context, next *approval.State) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	query := `INSERT INTO approval_states (` + stateColumns + `, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (threat_id) DO UPDATE SET
			status = EXCLUDED.status, ref = EXCLUDED.ref, priority = EXCLUDED.priority,
			posted_at = EXCLUDED.posted_at, decided_at = EXCLUDED.decided_at,
			edited_text = EXCLUDED.edited_text, published_ref = EXCLUDED.published_ref,
			updated_at = now()`
	if _, err := s.pool.Exec(ctx, query,
		next.ThreatID, string(next.Status), next.Ref, next.Priority,
		nullTime(next.PostedAt), nullTime(next.DecidedAt), next.EditedText, next.PublishedRef,
	); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// scanState scans one row into an approval.State. Returns (nil, nil) when no
// row is found.
func scanState(row pgx.Row) (*approval.State, error) {
	var (
		st        approval.State
		status    string
		postedAt  *time.Time
		decidedAt *time.Time
	)

	err := row.Scan(
		&st.ThreatID, &status, &st.Ref, &st.Priority,
		&postedAt, &decidedAt, &st.EditedText, &st.PublishedRef,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan state: %w", err)
	}

	st.Status = approval.Status(status)
	if !st.Status.Valid() {
		return nil, fmt.Errorf("stored state for %s has unknown status %q", st.ThreatID, status)
	}
	if postedAt != nil {
		st.PostedAt = *postedAt
	}
	if decidedAt != nil {
		st.DecidedAt = *decidedAt
	}
	return &st, nil
}
