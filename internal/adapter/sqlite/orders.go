package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// OrderResource persists orders and their lines using SQLite. Lines are
// replaced wholesale on update so the stored order always mirrors the
// submitted receipt exactly.
type OrderResource struct {
	db *sql.DB
}

var _ domain.Resource[domain.Order] = (*OrderResource)(nil)

func (r *OrderResource) Get(ctx context.Context, query domain.Query, onUpdate func([]domain.Order)) ([]domain.Order, error) {
	q := `SELECT id, consumer_id, occasion_id, created_at FROM orders`
	var args []any
	var where []string

	if !query.IncludeTrashed {
		where = append(where, `trashed_at IS NULL`)
	}
	if query.ConsumerID != "" {
		where = append(where, `consumer_id = ?`)
		args = append(args, query.ConsumerID)
	}
	if query.OccasionID != "" {
		where = append(where, `occasion_id = ?`)
		args = append(args, query.OccasionID)
	}
	q += whereClause(where) + ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := r.linesFor(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
		stream(onUpdate, orders[:i+1])
	}

	return orders, nil
}

func (r *OrderResource) Create(ctx context.Context, o domain.Order) (domain.Order, error) {
	if o.ID == "" {
		id, err := generateID()
		if err != nil {
			return domain.Order{}, fmt.Errorf("generating order id: %w", err)
		}
		o.ID = id
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, consumer_id, occasion_id, created_at)
			 VALUES (?, ?, ?, ?)`,
			o.ID, o.ConsumerID, o.OccasionID, o.CreatedAt.Format(timeFormat),
		)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}
		return insertLines(ctx, tx, o.ID, o.Lines)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *OrderResource) Update(ctx context.Context, o domain.Order) (domain.Order, error) {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE orders SET consumer_id = ?, occasion_id = ? WHERE id = ?`,
			o.ConsumerID, o.OccasionID, o.ID,
		)
		if err != nil {
			return fmt.Errorf("updating order: %w", err)
		}
		if err := mustAffect(result, domain.ErrOrderNotFound); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM order_lines WHERE order_id = ?`, o.ID); err != nil {
			return fmt.Errorf("clearing order lines: %w", err)
		}
		return insertLines(ctx, tx, o.ID, o.Lines)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return r.byID(ctx, o.ID)
}

func (r *OrderResource) Trash(ctx context.Context, id string) (domain.Order, error) {
	if err := setTrashed(ctx, r.db, "orders", id, true, domain.ErrOrderNotFound); err != nil {
		return domain.Order{}, err
	}
	return r.byID(ctx, id)
}

func (r *OrderResource) Untrash(ctx context.Context, id string) (domain.Order, error) {
	if err := setTrashed(ctx, r.db, "orders", id, false, domain.ErrOrderNotFound); err != nil {
		return domain.Order{}, err
	}
	return r.byID(ctx, id)
}

func (r *OrderResource) byID(ctx context.Context, id string) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, consumer_id, occasion_id, created_at FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	o.Lines, err = r.linesFor(ctx, id)
	return o, err
}

func (r *OrderResource) linesFor(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, quantity, price FROM order_lines
		 WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.Price); err != nil {
			return nil, fmt.Errorf("scanning order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *OrderResource) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertLines(ctx context.Context, tx *sql.Tx, orderID string, lines []domain.OrderLine) error {
	for i, l := range lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, position, product_id, quantity, price)
			 VALUES (?, ?, ?, ?, ?)`,
			orderID, i, l.ProductID, l.Quantity, l.Price,
		)
		if err != nil {
			return fmt.Errorf("inserting order line: %w", err)
		}
	}
	return nil
}

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	var createdAt string

	err := row.Scan(&o.ID, &o.ConsumerID, &o.OccasionID, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scanning order: %w", err)
	}
	o.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return o, nil
}
