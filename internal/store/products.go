package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shopbot/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateProduct inserts a product and its zero-stock inventory row in the
// same transaction.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO products (name, description, price, image_file_id, category, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, p, query,
		p.Name, p.Description, p.Price, p.ImageFileID, p.Category, p.IsActive)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO product_inventory (product_id, stock) VALUES ($1, 0)", p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert inventory row: %w", err)
	}

	return tx.Commit()
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts returns products newest first. Inactive products are excluded
// unless activeOnly is false; category filters when non-empty.
func (s *Store) ListProducts(ctx context.Context, activeOnly bool, category string) ([]models.Product, error) {
	query := "SELECT * FROM products"
	var conds []string
	var args []interface{}

	if activeOnly {
		conds = append(conds, "is_active")
	}
	if category != "" {
		args = append(args, category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var products []models.Product
	err := s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// ListCategories returns the distinct non-empty categories of active products
func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := s.db.SelectContext(ctx, &categories,
		"SELECT DISTINCT category FROM products WHERE is_active AND category <> '' ORDER BY category")
	return categories, err
}

// UpdateProduct applies a partial field set
func (s *Store) UpdateProduct(ctx context.Context, id int64, upd models.ProductUpdate) error {
	var sets []string
	var args []interface{}

	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Price != nil {
		add("price", *upd.Price)
	}
	if upd.ImageFileID != nil {
		add("image_file_id", *upd.ImageFileID)
	}
	if upd.Category != nil {
		add("category", *upd.Category)
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE products SET %s, updated_at = NOW() WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// SoftDeleteProduct hides a product from the catalog; orders referencing it
// remain valid.
func (s *Store) SoftDeleteProduct(ctx context.Context, id int64) error {
	active := false
	return s.UpdateProduct(ctx, id, models.ProductUpdate{IsActive: &active})
}

// HardDeleteProduct removes a product and cascades its inventory row
func (s *Store) HardDeleteProduct(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE product_id = $1", id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}

	return tx.Commit()
}

// GetProductsByIDs retrieves multiple products by IDs
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	err = s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}
