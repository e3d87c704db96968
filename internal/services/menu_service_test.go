package services

import (
	"context"
	"errors"
	"testing"

	"restaurant_ordering_backend/internal/models"
)

func newTestMenuService(store *fakeStore, cache *fakeMenuCache) MenuService {
	return NewMenuService(fakeMenuRepo{store}, fakeTransactor{store}, cache)
}

func TestGetPublicMenu_CacheAside(t *testing.T) {
	store := newFakeStore()
	store.addMenuItem("Burger", 15000, 15, true)
	store.addMenuItem("Suya", 4000, 10, false)
	cache := &fakeMenuCache{}
	svc := newTestMenuService(store, cache)

	items, err := svc.GetPublicMenu(context.Background())
	if err != nil {
		t.Fatalf("GetPublicMenu() error = %v", err)
	}
	if len(items) != 1 || items[0].Name != "Burger" {
		t.Fatalf("public menu = %+v, want only available items", items)
	}
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1", cache.sets)
	}

	// Served from cache: a new item is invisible until invalidation.
	store.addMenuItem("Jollof", 6000, 20, true)
	items, _ = svc.GetPublicMenu(context.Background())
	if len(items) != 1 {
		t.Errorf("cached menu = %d items, want 1", len(items))
	}

	if _, err := svc.CreateMenuItem(context.Background(), CreateMenuItemRequest{
		Name: "Plantain", Price: 2000, Category: models.CategorySide, PreparationTime: 5, Ingredients: []string{"plantain"},
	}); err != nil {
		t.Fatalf("CreateMenuItem() error = %v", err)
	}
	if cache.invalidates != 1 {
		t.Errorf("cache invalidations = %d, want 1", cache.invalidates)
	}
	items, _ = svc.GetPublicMenu(context.Background())
	if len(items) != 3 {
		t.Errorf("menu after invalidation = %d items, want 3", len(items))
	}
}

func TestGetPublicMenu_CacheErrorFallsBackToRepository(t *testing.T) {
	store := newFakeStore()
	store.addMenuItem("Burger", 15000, 15, true)
	svc := newTestMenuService(store, &fakeMenuCache{getErr: errBoom})

	items, err := svc.GetPublicMenu(context.Background())
	if err != nil || len(items) != 1 {
		t.Errorf("GetPublicMenu() = %d items, %v", len(items), err)
	}
}

func TestCreateMenuItem_Validation(t *testing.T) {
	svc := newTestMenuService(newFakeStore(), &fakeMenuCache{})
	negative := -1

	tests := []struct {
		name string
		req  CreateMenuItemRequest
	}{
		{"empty name", CreateMenuItemRequest{Name: " ", Price: 100, Category: models.CategoryMain, PreparationTime: 5, Ingredients: []string{"x"}}},
		{"zero price", CreateMenuItemRequest{Name: "A", Price: 0, Category: models.CategoryMain, PreparationTime: 5, Ingredients: []string{"x"}}},
		{"bad category", CreateMenuItemRequest{Name: "A", Price: 100, Category: "DESSERT", PreparationTime: 5, Ingredients: []string{"x"}}},
		{"no ingredients", CreateMenuItemRequest{Name: "A", Price: 100, Category: models.CategoryMain, PreparationTime: 5, Ingredients: []string{" "}}},
		{"negative calories", CreateMenuItemRequest{Name: "A", Price: 100, Category: models.CategoryMain, PreparationTime: 5, Ingredients: []string{"x"}, Nutrition: models.Nutrition{Calories: &negative}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateMenuItem(context.Background(), tt.req); !IsKind(err, KindValidation) {
				t.Errorf("error = %v, want validation error", err)
			}
		})
	}
}

func TestCreateMenuItem_DuplicateName(t *testing.T) {
	store := newFakeStore()
	store.addMenuItem("Burger", 15000, 15, true)
	svc := newTestMenuService(store, &fakeMenuCache{})

	_, err := svc.CreateMenuItem(context.Background(), CreateMenuItemRequest{
		Name: "burger", Price: 100, Category: models.CategoryMain, PreparationTime: 5, Ingredients: []string{"x"},
	})
	if !errors.Is(err, ErrMenuItemExists) {
		t.Errorf("error = %v, want ErrMenuItemExists", err)
	}
}

func TestUpdateMenuItem(t *testing.T) {
	store := newFakeStore()
	item := store.addMenuItem("Burger", 15000, 15, true)
	cache := &fakeMenuCache{}
	svc := newTestMenuService(store, cache)

	price := int64(16000)
	updated, err := svc.UpdateMenuItem(context.Background(), item.ID, UpdateMenuItemRequest{Price: &price})
	if err != nil {
		t.Fatalf("UpdateMenuItem() error = %v", err)
	}
	if updated.Price != 16000 || updated.Name != "Burger" {
		t.Errorf("updated = %+v", updated)
	}
	if cache.invalidates != 1 {
		t.Errorf("cache invalidations = %d, want 1", cache.invalidates)
	}

	zero := 0
	if _, err := svc.UpdateMenuItem(context.Background(), item.ID, UpdateMenuItemRequest{PreparationTime: &zero}); !IsKind(err, KindValidation) {
		t.Errorf("invalid update error = %v", err)
	}
	if _, err := svc.UpdateMenuItem(context.Background(), 999, UpdateMenuItemRequest{Price: &price}); !errors.Is(err, ErrMenuItemNotFound) {
		t.Errorf("missing item error = %v", err)
	}
}

func TestSetAvailability(t *testing.T) {
	store := newFakeStore()
	item := store.addMenuItem("Burger", 15000, 15, true)
	svc := newTestMenuService(store, &fakeMenuCache{})

	updated, err := svc.SetAvailability(context.Background(), item.ID, false)
	if err != nil {
		t.Fatalf("SetAvailability() error = %v", err)
	}
	if updated.IsAvailable {
		t.Error("item still available")
	}
	if _, err := svc.SetAvailability(context.Background(), 999, true); !errors.Is(err, ErrMenuItemNotFound) {
		t.Errorf("missing item error = %v", err)
	}
}

func TestDeleteMenuItem(t *testing.T) {
	store := newFakeStore()
	unused := store.addMenuItem("Wrap", 2500, 10, true)
	ordered := store.addMenuItem("Burger", 15000, 15, true)
	store.orderItems[100] = []models.OrderItem{{MenuItemID: ordered.ID, Quantity: 1}}
	svc := newTestMenuService(store, &fakeMenuCache{})

	if err := svc.DeleteMenuItem(context.Background(), ordered.ID); !errors.Is(err, ErrMenuItemInUse) {
		t.Errorf("delete of ordered item error = %v, want ErrMenuItemInUse", err)
	}
	if _, err := svc.GetMenuItem(context.Background(), ordered.ID); err != nil {
		t.Errorf("ordered item was removed: %v", err)
	}

	if err := svc.DeleteMenuItem(context.Background(), unused.ID); err != nil {
		t.Fatalf("DeleteMenuItem() error = %v", err)
	}
	if _, err := svc.GetMenuItem(context.Background(), unused.ID); !errors.Is(err, ErrMenuItemNotFound) {
		t.Errorf("deleted item lookup error = %v", err)
	}
	if err := svc.DeleteMenuItem(context.Background(), unused.ID); !errors.Is(err, ErrMenuItemNotFound) {
		t.Errorf("second delete error = %v", err)
	}
}
