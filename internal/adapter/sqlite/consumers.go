package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// ConsumerResource persists consumers using SQLite.
type ConsumerResource struct {
	db *sql.DB
}

var _ domain.Resource[domain.Consumer] = (*ConsumerResource)(nil)

const consumerColumns = `id, name, type_id, iban, show_in_lists, spending_limit`

func (r *ConsumerResource) Get(ctx context.Context, query domain.Query, onUpdate func([]domain.Consumer)) ([]domain.Consumer, error) {
	q := `SELECT ` + consumerColumns + ` FROM consumers`
	var args []any
	var where []string

	if !query.IncludeTrashed {
		where = append(where, `trashed_at IS NULL`)
	}
	if query.Search != "" {
		where = append(where, `name LIKE ?`)
		args = append(args, "%"+query.Search+"%")
	}
	q += whereClause(where) + ` ORDER BY name COLLATE NOCASE`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing consumers: %w", err)
	}
	defer rows.Close()

	var consumers []domain.Consumer
	for rows.Next() {
		c, err := scanConsumer(rows)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, c)
		stream(onUpdate, consumers)
	}

	return consumers, rows.Err()
}

func (r *ConsumerResource) Create(ctx context.Context, c domain.Consumer) (domain.Consumer, error) {
	if c.ID == "" {
		id, err := generateID()
		if err != nil {
			return domain.Consumer{}, fmt.Errorf("generating consumer id: %w", err)
		}
		c.ID = id
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO consumers (id, name, type_id, iban, show_in_lists, spending_limit)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, nullIfEmpty(c.TypeID), c.IBAN, c.Show, c.SpendingLimit,
	)
	if err != nil {
		return domain.Consumer{}, fmt.Errorf("inserting consumer: %w", err)
	}
	return c, nil
}

func (r *ConsumerResource) Update(ctx context.Context, c domain.Consumer) (domain.Consumer, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE consumers SET name = ?, type_id = ?, iban = ?, show_in_lists = ?, spending_limit = ?
		 WHERE id = ?`,
		c.Name, nullIfEmpty(c.TypeID), c.IBAN, c.Show, c.SpendingLimit, c.ID,
	)
	if err != nil {
		return domain.Consumer{}, fmt.Errorf("updating consumer: %w", err)
	}
	if err := mustAffect(result, domain.ErrConsumerNotFound); err != nil {
		return domain.Consumer{}, err
	}
	return c, nil
}

func (r *ConsumerResource) Trash(ctx context.Context, id string) (domain.Consumer, error) {
	if err := setTrashed(ctx, r.db, "consumers", id, true, domain.ErrConsumerNotFound); err != nil {
		return domain.Consumer{}, err
	}
	return r.byID(ctx, id)
}

func (r *ConsumerResource) Untrash(ctx context.Context, id string) (domain.Consumer, error) {
	if err := setTrashed(ctx, r.db, "consumers", id, false, domain.ErrConsumerNotFound); err != nil {
		return domain.Consumer{}, err
	}
	return r.byID(ctx, id)
}

func (r *ConsumerResource) byID(ctx context.Context, id string) (domain.Consumer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+consumerColumns+` FROM consumers WHERE id = ?`, id)
	c, err := scanConsumer(row)
	if err == sql.ErrNoRows {
		return domain.Consumer{}, domain.ErrConsumerNotFound
	}
	return c, err
}

func scanConsumer(row interface{ Scan(...any) error }) (domain.Consumer, error) {
	var c domain.Consumer
	var typeID sql.NullString

	err := row.Scan(&c.ID, &c.Name, &typeID, &c.IBAN, &c.Show, &c.SpendingLimit)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Consumer{}, err
		}
		return domain.Consumer{}, fmt.Errorf("scanning consumer: %w", err)
	}
	c.TypeID = typeID.String
	return c, nil
}

// ConsumerTypeResource persists consumer categories using SQLite. Types have
// no trash semantics beyond the shared soft-delete column.
type ConsumerTypeResource struct {
	db *sql.DB
}

var _ domain.Resource[domain.ConsumerType] = (*ConsumerTypeResource)(nil)

func (r *ConsumerTypeResource) Get(ctx context.Context, query domain.Query, onUpdate func([]domain.ConsumerType)) ([]domain.ConsumerType, error) {
	q := `SELECT id, name FROM consumer_types`
	var args []any
	var where []string

	if !query.IncludeTrashed {
		where = append(where, `trashed_at IS NULL`)
	}
	if query.Search != "" {
		where = append(where, `name LIKE ?`)
		args = append(args, "%"+query.Search+"%")
	}
	q += whereClause(where) + ` ORDER BY name COLLATE NOCASE`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing consumer types: %w", err)
	}
	defer rows.Close()

	var types []domain.ConsumerType
	for rows.Next() {
		var t domain.ConsumerType
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scanning consumer type: %w", err)
		}
		types = append(types, t)
		stream(onUpdate, types)
	}

	return types, rows.Err()
}

func (r *ConsumerTypeResource) Create(ctx context.Context, t domain.ConsumerType) (domain.ConsumerType, error) {
	if t.ID == "" {
		id, err := generateID()
		if err != nil {
			return domain.ConsumerType{}, fmt.Errorf("generating consumer type id: %w", err)
		}
		t.ID = id
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO consumer_types (id, name) VALUES (?, ?)`, t.ID, t.Name)
	if err != nil {
		return domain.ConsumerType{}, fmt.Errorf("inserting consumer type: %w", err)
	}
	return t, nil
}

func (r *ConsumerTypeResource) Update(ctx context.Context, t domain.ConsumerType) (domain.ConsumerType, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE consumer_types SET name = ? WHERE id = ?`, t.Name, t.ID)
	if err != nil {
		return domain.ConsumerType{}, fmt.Errorf("updating consumer type: %w", err)
	}
	if err := mustAffect(result, domain.ErrConsumerTypeNotFound); err != nil {
		return domain.ConsumerType{}, err
	}
	return t, nil
}

func (r *ConsumerTypeResource) Trash(ctx context.Context, id string) (domain.ConsumerType, error) {
	if err := setTrashed(ctx, r.db, "consumer_types", id, true, domain.ErrConsumerTypeNotFound); err != nil {
		return domain.ConsumerType{}, err
	}
	return r.byID(ctx, id)
}

func (r *ConsumerTypeResource) Untrash(ctx context.Context, id string) (domain.ConsumerType, error) {
	if err := setTrashed(ctx, r.db, "consumer_types", id, false, domain.ErrConsumerTypeNotFound); err != nil {
		return domain.ConsumerType{}, err
	}
	return r.byID(ctx, id)
}

func (r *ConsumerTypeResource) byID(ctx context.Context, id string) (domain.ConsumerType, error) {
	var t domain.ConsumerType
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name FROM consumer_types WHERE id = ?`, id).Scan(&t.ID, &t.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.ConsumerType{}, domain.ErrConsumerTypeNotFound
		}
		return domain.ConsumerType{}, fmt.Errorf("scanning consumer type: %w", err)
	}
	return t, nil
}
