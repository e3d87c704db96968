package services

import (
	"context"
	"errors"
	"strings"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/repositories"
	"restaurant_ordering_backend/pkg/utils"
)

// CreateMenuItemRequest DTO
type CreateMenuItemRequest struct {
	Name            string              `json:"name" binding:"required"`
	Description     string              `json:"description"`
	Price           int64               `json:"price" binding:"required,gt=0"`
	Category        models.MenuCategory `json:"category" binding:"required"`
	PreparationTime int                 `json:"preparation_time" binding:"required,gt=0"`
	Ingredients     []string            `json:"ingredients" binding:"required,min=1"`
	models.Nutrition
}

// UpdateMenuItemRequest DTO. Nil fields are left unchanged.
type UpdateMenuItemRequest struct {
	Name            *string              `json:"name"`
	Description     *string              `json:"description"`
	Price           *int64               `json:"price"`
	Category        *models.MenuCategory `json:"category"`
	PreparationTime *int                 `json:"preparation_time"`
	Ingredients     []string             `json:"ingredients"`
	IsAvailable     *bool                `json:"is_available"`
	Calories        *int                 `json:"calories"`
	Protein         *int                 `json:"protein"`
	Carbs           *int                 `json:"carbs"`
	Fat             *int                 `json:"fat"`
}

// SetAvailabilityRequest DTO
type SetAvailabilityRequest struct {
	IsAvailable *bool `json:"is_available" binding:"required"`
}

type MenuService interface {
	CreateMenuItem(ctx context.Context, req CreateMenuItemRequest) (*models.MenuItem, error)
	GetMenuItem(ctx context.Context, id int64) (*models.MenuItem, error)
	ListMenuItems(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, int, error)
	// GetPublicMenu returns every available item, served from the cache when possible.
	GetPublicMenu(ctx context.Context) ([]models.MenuItem, error)
	UpdateMenuItem(ctx context.Context, id int64, req UpdateMenuItemRequest) (*models.MenuItem, error)
	SetAvailability(ctx context.Context, id int64, available bool) (*models.MenuItem, error)
	DeleteMenuItem(ctx context.Context, id int64) error
}

type menuService struct {
	menuRepo repositories.MenuRepository
	tx       repositories.Transactor
	cache    MenuCache
}

// NewMenuService creates a new instance of MenuService.
func NewMenuService(mr repositories.MenuRepository, tx repositories.Transactor, cache MenuCache) MenuService {
	return &menuService{menuRepo: mr, tx: tx, cache: cache}
}

func menuValidation(err error) error {
	if errors.Is(err, models.ErrInvalidMenuItem) {
		return validationError("%s", strings.TrimPrefix(err.Error(), models.ErrInvalidMenuItem.Error()+": "))
	}
	return err
}

func menuWriteError(err error, id int64) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return withDetail(ErrMenuItemNotFound, "menu item %d", id)
	case errors.Is(err, repositories.ErrDuplicateKey):
		return ErrMenuItemExists
	case errors.Is(err, repositories.ErrForeignKey):
		return ErrMenuItemInUse
	}
	return err
}

// invalidate drops the cached public menu. A failure only means stale reads until the TTL passes.
func (s *menuService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		utils.LogWarn("Failed to invalidate menu cache", map[string]interface{}{"error": err.Error()})
	}
}

func (s *menuService) CreateMenuItem(ctx context.Context, req CreateMenuItemRequest) (*models.MenuItem, error) {
	item, err := models.NewMenuItem(req.Name, req.Description, req.Price, req.Category, req.PreparationTime, req.Ingredients, req.Nutrition)
	if err != nil {
		return nil, menuValidation(err)
	}
	err = s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		_, err := s.menuRepo.Create(ctx, exec, item)
		return err
	})
	if err != nil {
		return nil, menuWriteError(err, 0)
	}
	s.invalidate(ctx)
	utils.LogInfo("Menu item created", map[string]interface{}{"menu_item_id": item.ID, "name": item.Name})
	return item, nil
}

func (s *menuService) GetMenuItem(ctx context.Context, id int64) (*models.MenuItem, error) {
	item, err := s.menuRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrMenuItemNotFound
		}
		return nil, err
	}
	return item, nil
}

func (s *menuService) ListMenuItems(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, int, error) {
	if filters.Category != nil && !filters.Category.IsValid() {
		return nil, 0, validationError("unknown category %q", *filters.Category)
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = defaultPageSize
	}
	if filters.PageSize > maxPageSize {
		filters.PageSize = maxPageSize
	}
	return s.menuRepo.List(ctx, filters)
}

func (s *menuService) GetPublicMenu(ctx context.Context) ([]models.MenuItem, error) {
	items, ok, err := s.cache.GetMenu(ctx)
	if err != nil {
		utils.LogWarn("Menu cache read failed", map[string]interface{}{"error": err.Error()})
	} else if ok {
		return items, nil
	}

	available := true
	items, _, err = s.menuRepo.List(ctx, models.MenuFilters{IsAvailable: &available})
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetMenu(ctx, items); err != nil {
		utils.LogWarn("Menu cache write failed", map[string]interface{}{"error": err.Error()})
	}
	return items, nil
}

func (s *menuService) UpdateMenuItem(ctx context.Context, id int64, req UpdateMenuItemRequest) (*models.MenuItem, error) {
	item, err := s.GetMenuItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		item.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		item.Price = *req.Price
	}
	if req.Category != nil {
		item.Category = *req.Category
	}
	if req.PreparationTime != nil {
		item.PreparationTime = *req.PreparationTime
	}
	if req.Ingredients != nil {
		item.Ingredients = nil
		for _, ing := range req.Ingredients {
			if ing = strings.TrimSpace(ing); ing != "" {
				item.Ingredients = append(item.Ingredients, ing)
			}
		}
	}
	if req.IsAvailable != nil {
		item.IsAvailable = *req.IsAvailable
	}
	if req.Calories != nil {
		item.Calories = req.Calories
	}
	if req.Protein != nil {
		item.Protein = req.Protein
	}
	if req.Carbs != nil {
		item.Carbs = req.Carbs
	}
	if req.Fat != nil {
		item.Fat = req.Fat
	}
	if err := item.Validate(); err != nil {
		return nil, menuValidation(err)
	}

	err = s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		return s.menuRepo.Update(ctx, exec, item)
	})
	if err != nil {
		return nil, menuWriteError(err, id)
	}
	s.invalidate(ctx)
	return item, nil
}

func (s *menuService) SetAvailability(ctx context.Context, id int64, available bool) (*models.MenuItem, error) {
	err := s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		return s.menuRepo.SetAvailability(ctx, exec, id, available)
	})
	if err != nil {
		return nil, menuWriteError(err, id)
	}
	s.invalidate(ctx)
	utils.LogInfo("Menu item availability changed", map[string]interface{}{"menu_item_id": id, "available": available})
	return s.GetMenuItem(ctx, id)
}

// DeleteMenuItem removes an item that no order references. Items with order history
// should be marked unavailable instead.
func (s *menuService) DeleteMenuItem(ctx context.Context, id int64) error {
	err := s.tx.WithinTransaction(ctx, func(exec repositories.SQLExecutor) error {
		refs, err := s.menuRepo.CountOrderReferences(ctx, exec, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return withDetail(ErrMenuItemInUse, "referenced by %d order lines", refs)
		}
		return s.menuRepo.Delete(ctx, exec, id)
	})
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) {
			return err
		}
		return menuWriteError(err, id)
	}
	s.invalidate(ctx)
	return nil
}
