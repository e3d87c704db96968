package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MenuCategory groups menu items on the public menu.
type MenuCategory string

const (
	CategoryMain  MenuCategory = "MAIN"
	CategorySide  MenuCategory = "SIDE"
	CategoryCombo MenuCategory = "COMBO"
)

// IsValid reports whether c is one of the known categories.
func (c MenuCategory) IsValid() bool {
	switch c {
	case CategoryMain, CategorySide, CategoryCombo:
		return true
	}
	return false
}

// ErrInvalidMenuItem is wrapped by every MenuItem invariant violation.
var ErrInvalidMenuItem = errors.New("invalid menu item")

// Nutrition holds the optional nutritional fields of a menu item.
type Nutrition struct {
	Calories *int `json:"calories,omitempty"`
	Protein  *int `json:"protein,omitempty"`
	Carbs    *int `json:"carbs,omitempty"`
	Fat      *int `json:"fat,omitempty"`
}

// MenuItem is a dish that can be ordered. Price is in minor currency units.
type MenuItem struct {
	ID              int64        `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Price           int64        `json:"price"`
	Category        MenuCategory `json:"category"`
	IsAvailable     bool         `json:"is_available"`
	PreparationTime int          `json:"preparation_time"` // minutes
	Ingredients     []string     `json:"ingredients"`
	Nutrition
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMenuItem builds a MenuItem and enforces its invariants. New items are available by default.
func NewMenuItem(name, description string, price int64, category MenuCategory, prepTime int, ingredients []string, nutrition Nutrition) (*MenuItem, error) {
	item := &MenuItem{
		Name:            strings.TrimSpace(name),
		Description:     strings.TrimSpace(description),
		Price:           price,
		Category:        category,
		IsAvailable:     true,
		PreparationTime: prepTime,
		Ingredients:     cleanIngredients(ingredients),
		Nutrition:       nutrition,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks the MenuItem invariants. It is also used after partial updates.
func (m *MenuItem) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidMenuItem)
	}
	if m.Price <= 0 {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidMenuItem)
	}
	if !m.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidMenuItem, m.Category)
	}
	if m.PreparationTime <= 0 {
		return fmt.Errorf("%w: preparation time must be greater than zero", ErrInvalidMenuItem)
	}
	if len(m.Ingredients) == 0 {
		return fmt.Errorf("%w: at least one ingredient is required", ErrInvalidMenuItem)
	}
	for _, v := range []*int{m.Calories, m.Protein, m.Carbs, m.Fat} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: nutritional values cannot be negative", ErrInvalidMenuItem)
		}
	}
	return nil
}

func cleanIngredients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MenuFilters defines the available filters for listing menu items.
type MenuFilters struct {
	Category    *MenuCategory `form:"category"`
	IsAvailable *bool         `form:"is_available"`
	Search      *string       `form:"search"`
	Page        int           `form:"page"`
	PageSize    int           `form:"page_size"`
}
