package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/neomorfeo/tallyiq/internal/domain"
)

// ProductResource persists products using SQLite. The title carries a unique
// NOCASE index; accent folding happens in the catalog layer before save.
type ProductResource struct {
	db *sql.DB
}

var _ domain.Resource[domain.Product] = (*ProductResource)(nil)

func (r *ProductResource) Get(ctx context.Context, query domain.Query, onUpdate func([]domain.Product)) ([]domain.Product, error) {
	q := `SELECT id, title, price, show_in_lists FROM products`
	var args []any
	var where []string

	if !query.IncludeTrashed {
		where = append(where, `trashed_at IS NULL`)
	}
	if query.Search != "" {
		where = append(where, `title LIKE ?`)
		args = append(args, "%"+query.Search+"%")
	}
	q += whereClause(where) + ` ORDER BY title COLLATE NOCASE`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Show); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
		stream(onUpdate, products)
	}

	return products, rows.Err()
}

func (r *ProductResource) Create(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		id, err := generateID()
		if err != nil {
			return domain.Product{}, fmt.Errorf("generating product id: %w", err)
		}
		p.ID = id
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, title, price, show_in_lists) VALUES (?, ?, ?, ?)`,
		p.ID, p.Title, p.Price, p.Show,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, &domain.TitleConflictError{Title: p.Title}
		}
		return domain.Product{}, fmt.Errorf("inserting product: %w", err)
	}
	return p, nil
}

func (r *ProductResource) Update(ctx context.Context, p domain.Product) (domain.Product, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET title = ?, price = ?, show_in_lists = ? WHERE id = ?`,
		p.Title, p.Price, p.Show, p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Product{}, &domain.TitleConflictError{Title: p.Title}
		}
		return domain.Product{}, fmt.Errorf("updating product: %w", err)
	}
	if err := mustAffect(result, domain.ErrProductNotFound); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (r *ProductResource) Trash(ctx context.Context, id string) (domain.Product, error) {
	if err := setTrashed(ctx, r.db, "products", id, true, domain.ErrProductNotFound); err != nil {
		return domain.Product{}, err
	}
	return r.byID(ctx, id)
}

func (r *ProductResource) Untrash(ctx context.Context, id string) (domain.Product, error) {
	if err := setTrashed(ctx, r.db, "products", id, false, domain.ErrProductNotFound); err != nil {
		return domain.Product{}, err
	}
	return r.byID(ctx, id)
}

func (r *ProductResource) byID(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, price, show_in_lists FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Price, &p.Show)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("scanning product: %w", err)
	}
	return p, nil
}
