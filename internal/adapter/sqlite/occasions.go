package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// OccasionResourceImpl persists occasions using SQLite, including the close
// and reopen lifecycle calls.
type OccasionResourceImpl struct {
	db *sql.DB
}

var _ domain.OccasionResource = (*OccasionResourceImpl)(nil)

func (r *OccasionResourceImpl) Get(ctx context.Context, query domain.Query, onUpdate func([]domain.Occasion)) ([]domain.Occasion, error) {
	q := `SELECT id, title, date, closed FROM occasions`
	var args []any
	var where []string

	if !query.IncludeTrashed {
		where = append(where, `trashed_at IS NULL`)
	}
	if query.Search != "" {
		// Date prefix matching lets callers resolve an occasion by day even
		// after it has been renamed.
		where = append(where, `(title LIKE ? OR date LIKE ?)`)
		args = append(args, "%"+query.Search+"%", query.Search+"%")
	}
	q += whereClause(where) + ` ORDER BY date DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing occasions: %w", err)
	}
	defer rows.Close()

	var occasions []domain.Occasion
	for rows.Next() {
		o, err := scanOccasion(rows)
		if err != nil {
			return nil, err
		}
		occasions = append(occasions, o)
		stream(onUpdate, occasions)
	}

	return occasions, rows.Err()
}

func (r *OccasionResourceImpl) Create(ctx context.Context, o domain.Occasion) (domain.Occasion, error) {
	if o.ID == "" {
		id, err := generateID()
		if err != nil {
			return domain.Occasion{}, fmt.Errorf("generating occasion id: %w", err)
		}
		o.ID = id
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO occasions (id, title, date, closed) VALUES (?, ?, ?, ?)`,
		o.ID, o.Title, o.Date.UTC().Format(timeFormat), o.Closed,
	)
	if err != nil {
		return domain.Occasion{}, fmt.Errorf("inserting occasion: %w", err)
	}
	return o, nil
}

func (r *OccasionResourceImpl) Update(ctx context.Context, o domain.Occasion) (domain.Occasion, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE occasions SET title = ?, date = ?, closed = ? WHERE id = ?`,
		o.Title, o.Date.UTC().Format(timeFormat), o.Closed, o.ID,
	)
	if err != nil {
		return domain.Occasion{}, fmt.Errorf("updating occasion: %w", err)
	}
	if err := mustAffect(result, domain.ErrOccasionNotFound); err != nil {
		return domain.Occasion{}, err
	}
	return o, nil
}

func (r *OccasionResourceImpl) Trash(ctx context.Context, id string) (domain.Occasion, error) {
	if err := setTrashed(ctx, r.db, "occasions", id, true, domain.ErrOccasionNotFound); err != nil {
		return domain.Occasion{}, err
	}
	return r.byID(ctx, id)
}

func (r *OccasionResourceImpl) Untrash(ctx context.Context, id string) (domain.Occasion, error) {
	if err := setTrashed(ctx, r.db, "occasions", id, false, domain.ErrOccasionNotFound); err != nil {
		return domain.Occasion{}, err
	}
	return r.byID(ctx, id)
}

func (r *OccasionResourceImpl) Close(ctx context.Context, id string) (domain.Occasion, error) {
	return r.setClosed(ctx, id, true)
}

func (r *OccasionResourceImpl) Reopen(ctx context.Context, id string) (domain.Occasion, error) {
	return r.setClosed(ctx, id, false)
}

func (r *OccasionResourceImpl) setClosed(ctx context.Context, id string, closed bool) (domain.Occasion, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE occasions SET closed = ? WHERE id = ?`, closed, id)
	if err != nil {
		return domain.Occasion{}, fmt.Errorf("updating occasion closed state: %w", err)
	}
	if err := mustAffect(result, domain.ErrOccasionNotFound); err != nil {
		return domain.Occasion{}, err
	}
	return r.byID(ctx, id)
}

func (r *OccasionResourceImpl) byID(ctx context.Context, id string) (domain.Occasion, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, date, closed FROM occasions WHERE id = ?`, id)
	o, err := scanOccasion(row)
	if err == sql.ErrNoRows {
		return domain.Occasion{}, domain.ErrOccasionNotFound
	}
	return o, err
}

func scanOccasion(row interface{ Scan(...any) error }) (domain.Occasion, error) {
	var o domain.Occasion
	var date string

	err := row.Scan(&o.ID, &o.Title, &date, &o.Closed)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Occasion{}, err
		}
		return domain.Occasion{}, fmt.Errorf("scanning occasion: %w", err)
	}
	o.Date, _ = time.Parse(timeFormat, date)
	return o, nil
}
