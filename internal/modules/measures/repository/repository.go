package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meteo-server/internal/modules/measures/types"
)

//go:embed sql/find-latest.sql
var findLatestSQL string

//go:embed sql/find-top.sql
var findTopSQL string

//go:embed sql/find-by-type-in-range.sql
var findByTypeInRangeSQL string

//go:embed sql/find-all-by-type.sql
var findAllByTypeSQL string

//go:embed sql/insert-measure.sql
var insertMeasureSQL string

// ErrStorage marks failures of the database itself (connectivity, query
// execution, unreadable rows). It is never returned for "no matching rows".
var ErrStorage = errors.New("measure storage failure")

// dateLayout is fixed width so that text ordering in SQLite matches time ordering.
const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

type MeasureRepository interface {
	// FindLatest returns the measure of type t with the greatest measure date.
	FindLatest(ctx context.Context, t types.MeasureType) (types.Measure, bool, error)
	// FindTop returns the measure of type t with the greatest value.
	FindTop(ctx context.Context, t types.MeasureType) (types.Measure, bool, error)
	FindByTypeInRange(ctx context.Context, t types.MeasureType, start, end time.Time) ([]types.Measure, error)
	FindAllByType(ctx context.Context, t types.MeasureType) ([]types.Measure, error)
	// Insert stores m with a fresh id and the current time as measure date.
	// Any MeasureDate or ID already set on m is ignored.
	Insert(ctx context.Context, m types.Measure) (types.Measure, error)
}

type Option func(*repositoryImpl)

// WithClock overrides the source of server-assigned measure dates.
func WithClock(now func() time.Time) Option {
	return func(r *repositoryImpl) {
		r.now = now
	}
}

type repositoryImpl struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB, opts ...Option) MeasureRepository {
	r := &repositoryImpl{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *repositoryImpl) FindLatest(ctx context.Context, t types.MeasureType) (types.Measure, bool, error) {
	return r.findOne(ctx, "find latest", findLatestSQL, t.String())
}

func (r *repositoryImpl) FindTop(ctx context.Context, t types.MeasureType) (types.Measure, bool, error) {
	return r.findOne(ctx, "find top", findTopSQL, t.String())
}

func (r *repositoryImpl) FindByTypeInRange(ctx context.Context, t types.MeasureType, start, end time.Time) ([]types.Measure, error) {
	return r.findMany(ctx, "find by type in range", findByTypeInRangeSQL,
		t.String(), formatDate(start), formatDate(end))
}

func (r *repositoryImpl) FindAllByType(ctx context.Context, t types.MeasureType) ([]types.Measure, error) {
	return r.findMany(ctx, "find all by type", findAllByTypeSQL, t.String())
}

func (r *repositoryImpl) Insert(ctx context.Context, m types.Measure) (types.Measure, error) {
	value, err := types.NormalizeValue(m.Value)
	if err != nil {
		return types.Measure{}, err
	}
	if _, err := types.ParseMeasureType(m.Type.String()); err != nil {
		return types.Measure{}, err
	}
	if _, err := types.ParseMeasureUnit(m.Unit.String()); err != nil {
		return types.Measure{}, err
	}

	measureDate := r.now().UTC()
	res, err := r.db.ExecContext(ctx, insertMeasureSQL,
		m.Type.String(),
		m.Unit.String(),
		types.ValueToCents(value),
		formatDate(measureDate),
	)
	if err != nil {
		return types.Measure{}, fmt.Errorf("%w: insert measure: %w", ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.Measure{}, fmt.Errorf("%w: insert measure id: %w", ErrStorage, err)
	}

	return types.Measure{
		ID:          id,
		Type:        m.Type,
		Unit:        m.Unit,
		Value:       value,
		MeasureDate: measureDate,
	}, nil
}

func (r *repositoryImpl) findOne(ctx context.Context, op string, query string, args ...any) (types.Measure, bool, error) {
	out, err := r.findMany(ctx, op, query, args...)
	if err != nil {
		return types.Measure{}, false, err
	}
	if len(out) == 0 {
		return types.Measure{}, false, nil
	}
	return out[0], true, nil
}

func (r *repositoryImpl) findMany(ctx context.Context, op string, query string, args ...any) ([]types.Measure, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close measure rows", "op", op, "error", err)
		}
	}()

	out, err := scanMeasures(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}
	return out, nil
}

func scanMeasures(rows *sql.Rows) ([]types.Measure, error) {
	out := []types.Measure{}
	for rows.Next() {
		var (
			m        types.Measure
			typeStr  string
			unitStr  string
			cents    int64
			dateStr  string
			parseErr error
		)
		if err := rows.Scan(&m.ID, &typeStr, &unitStr, &cents, &dateStr); err != nil {
			return nil, err
		}
		if m.Type, parseErr = types.ParseMeasureType(typeStr); parseErr != nil {
			return nil, fmt.Errorf("row %d: %w", m.ID, parseErr)
		}
		if m.Unit, parseErr = types.ParseMeasureUnit(unitStr); parseErr != nil {
			return nil, fmt.Errorf("row %d: %w", m.ID, parseErr)
		}
		if m.MeasureDate, parseErr = parseDate(dateStr); parseErr != nil {
			return nil, fmt.Errorf("row %d: %w", m.ID, parseErr)
		}
		m.Value = types.ValueFromCents(cents)
		out = append(out, m)
	}
	return out, rows.Err()
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse measure date %q: %w", s, err)
	}
	return t.UTC(), nil
}
