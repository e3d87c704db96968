package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/services"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// MenuHandler serves the public menu and the back-office menu management endpoints.
type MenuHandler struct {
	menuService services.MenuService
}

func NewMenuHandler(ms services.MenuService) *MenuHandler {
	return &MenuHandler{menuService: ms}
}

// GetPublicMenu lists available items, optionally narrowed to one category.
func (h *MenuHandler) GetPublicMenu(c *gin.Context) {
	items, err := h.menuService.GetPublicMenu(c.Request.Context())
	if err != nil {
		respondServiceError(c, "GetPublicMenu", err)
		return
	}
	if category := c.Query("category"); category != "" {
		want := models.MenuCategory(strings.ToUpper(category))
		if !want.IsValid() {
			utils.RespondValidationFailed(c, "unknown category "+category)
			return
		}
		filtered := make([]models.MenuItem, 0, len(items))
		for _, item := range items {
			if item.Category == want {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []models.MenuItem{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (h *MenuHandler) GetMenuItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.menuService.GetMenuItem(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, "GetMenuItem", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// ListMenuItems is the back-office listing, including unavailable items.
func (h *MenuHandler) ListMenuItems(c *gin.Context) {
	var filters models.MenuFilters
	if category := c.Query("category"); category != "" {
		cat := models.MenuCategory(strings.ToUpper(category))
		filters.Category = &cat
	}
	if available := c.Query("is_available"); available != "" {
		b, err := strconv.ParseBool(available)
		if err != nil {
			utils.RespondValidationFailed(c, "is_available must be true or false")
			return
		}
		filters.IsAvailable = &b
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filters.Search = &search
	}
	page, pageSize, ok := parsePagination(c)
	if !ok {
		return
	}
	filters.Page, filters.PageSize = page, pageSize

	items, total, err := h.menuService.ListMenuItems(c.Request.Context(), filters)
	if err != nil {
		respondServiceError(c, "ListMenuItems", err)
		return
	}
	if items == nil {
		items = []models.MenuItem{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "total": total, "page": filters.Page, "page_size": filters.PageSize})
}

func (h *MenuHandler) CreateMenuItem(c *gin.Context) {
	var req services.CreateMenuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	item, err := h.menuService.CreateMenuItem(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, "CreateMenuItem", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *MenuHandler) UpdateMenuItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req services.UpdateMenuItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	item, err := h.menuService.UpdateMenuItem(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, "UpdateMenuItem", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *MenuHandler) SetAvailability(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req services.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	item, err := h.menuService.SetAvailability(c.Request.Context(), id, *req.IsAvailable)
	if err != nil {
		respondServiceError(c, "SetAvailability", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *MenuHandler) DeleteMenuItem(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.menuService.DeleteMenuItem(c.Request.Context(), id); err != nil {
		respondServiceError(c, "DeleteMenuItem", err)
		return
	}
	c.Status(http.StatusNoContent)
}
