package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant_ordering_backend/internal/models"

	"github.com/lib/pq"
)

// MenuRepository defines the interface for menu-related database operations.
type MenuRepository interface {
	Create(ctx context.Context, executor SQLExecutor, item *models.MenuItem) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.MenuItem, error)
	// GetForOrder reads an item with a shared row lock so availability cannot change
	// until the surrounding transaction ends.
	GetForOrder(ctx context.Context, executor SQLExecutor, id int64) (*models.MenuItem, error)
	List(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, int, error) // items, total count, error
	Update(ctx context.Context, executor SQLExecutor, item *models.MenuItem) error
	SetAvailability(ctx context.Context, executor SQLExecutor, id int64, available bool) error
	CountOrderReferences(ctx context.Context, executor SQLExecutor, id int64) (int, error)
	Delete(ctx context.Context, executor SQLExecutor, id int64) error
}

type menuRepository struct {
	db *sql.DB
}

// NewMenuRepository creates a new instance of MenuRepository.
func NewMenuRepository(db *sql.DB) MenuRepository {
	return &menuRepository{db: db}
}

const menuItemColumns = `id, name, description, price, category, is_available, preparation_time,
	ingredients, calories, protein, carbs, fat, created_at, updated_at`

func scanMenuItem(s scanner) (*models.MenuItem, error) {
	item := &models.MenuItem{}
	var calories, protein, carbs, fat sql.NullInt64
	err := s.Scan(
		&item.ID, &item.Name, &item.Description, &item.Price, &item.Category, &item.IsAvailable,
		&item.PreparationTime, pq.Array(&item.Ingredients), &calories, &protein, &carbs, &fat,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Calories = nullIntPtr(calories)
	item.Protein = nullIntPtr(protein)
	item.Carbs = nullIntPtr(carbs)
	item.Fat = nullIntPtr(fat)
	return item, nil
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func (r *menuRepository) Create(ctx context.Context, executor SQLExecutor, item *models.MenuItem) (int64, error) {
	query := `INSERT INTO menu_items
	            (name, description, price, category, is_available, preparation_time, ingredients,
	             calories, protein, carbs, fat, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          RETURNING id`
	now := time.Now().UTC()
	err := executor.QueryRowContext(ctx, query,
		item.Name, item.Description, item.Price, item.Category, item.IsAvailable, item.PreparationTime,
		pq.Array(item.Ingredients), item.Calories, item.Protein, item.Carbs, item.Fat, now, now,
	).Scan(&item.ID)
	if err != nil {
		return 0, classifyPQError(err, fmt.Sprintf("creating menu item %q", item.Name))
	}
	item.CreatedAt, item.UpdatedAt = now, now
	return item.ID, nil
}

func (r *menuRepository) GetByID(ctx context.Context, id int64) (*models.MenuItem, error) {
	query := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = $1`
	item, err := scanMenuItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting menu item by ID %d: %v", ErrDatabaseError, id, err)
	}
	return item, nil
}

func (r *menuRepository) GetForOrder(ctx context.Context, executor SQLExecutor, id int64) (*models.MenuItem, error) {
	query := `SELECT ` + menuItemColumns + ` FROM menu_items WHERE id = $1 FOR SHARE`
	item, err := scanMenuItem(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: locking menu item %d: %v", ErrDatabaseError, id, err)
	}
	return item, nil
}

func (r *menuRepository) List(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, int, error) {
	items := []models.MenuItem{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + menuItemColumns + `, COUNT(*) OVER() AS total_count FROM menu_items`)

	var conditions []string
	var args []interface{}
	argCounter := 1

	if filters.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argCounter))
		args = append(args, *filters.Category)
		argCounter++
	}
	if filters.IsAvailable != nil {
		conditions = append(conditions, fmt.Sprintf("is_available = $%d", argCounter))
		args = append(args, *filters.IsAvailable)
		argCounter++
	}
	if filters.Search != nil && strings.TrimSpace(*filters.Search) != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", argCounter, argCounter))
		args = append(args, "%"+strings.TrimSpace(*filters.Search)+"%")
		argCounter++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY category, name")

	if filters.PageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d", argCounter))
		args = append(args, filters.PageSize)
		argCounter++
		if filters.Page > 0 {
			queryBuilder.WriteString(fmt.Sprintf(" OFFSET $%d", argCounter))
			args = append(args, (filters.Page-1)*filters.PageSize)
		}
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying menu items: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		item := models.MenuItem{}
		var calories, protein, carbs, fat sql.NullInt64
		err := rows.Scan(
			&item.ID, &item.Name, &item.Description, &item.Price, &item.Category, &item.IsAvailable,
			&item.PreparationTime, pq.Array(&item.Ingredients), &calories, &protein, &carbs, &fat,
			&item.CreatedAt, &item.UpdatedAt, &totalCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scanning menu item: %v", ErrDatabaseError, err)
		}
		item.Calories = nullIntPtr(calories)
		item.Protein = nullIntPtr(protein)
		item.Carbs = nullIntPtr(carbs)
		item.Fat = nullIntPtr(fat)
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating menu items: %v", ErrDatabaseError, err)
	}
	return items, totalCount, nil
}

func (r *menuRepository) Update(ctx context.Context, executor SQLExecutor, item *models.MenuItem) error {
	query := `UPDATE menu_items
	          SET name = $1, description = $2, price = $3, category = $4, is_available = $5,
	              preparation_time = $6, ingredients = $7, calories = $8, protein = $9, carbs = $10,
	              fat = $11, updated_at = $12
	          WHERE id = $13`
	now := time.Now().UTC()
	result, err := executor.ExecContext(ctx, query,
		item.Name, item.Description, item.Price, item.Category, item.IsAvailable, item.PreparationTime,
		pq.Array(item.Ingredients), item.Calories, item.Protein, item.Carbs, item.Fat, now, item.ID,
	)
	if err != nil {
		return classifyPQError(err, fmt.Sprintf("updating menu item %d", item.ID))
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	item.UpdatedAt = now
	return nil
}

func (r *menuRepository) SetAvailability(ctx context.Context, executor SQLExecutor, id int64, available bool) error {
	query := `UPDATE menu_items SET is_available = $1, updated_at = $2 WHERE id = $3`
	result, err := executor.ExecContext(ctx, query, available, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: setting availability for menu item %d: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *menuRepository) CountOrderReferences(ctx context.Context, executor SQLExecutor, id int64) (int, error) {
	var count int
	err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items WHERE menu_item_id = $1`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: checking order history for menu item %d: %v", ErrDatabaseError, id, err)
	}
	return count, nil
}

func (r *menuRepository) Delete(ctx context.Context, executor SQLExecutor, id int64) error {
	result, err := executor.ExecContext(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return classifyPQError(err, fmt.Sprintf("deleting menu item %d", id))
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
