package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/repositories"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func defaultOrderConfig() OrderConfig {
	return OrderConfig{TaxRate: decimal.RequireFromString("0.075"), DeliveryFee: 5000}
}

func newTestOrderService(store *fakeStore, cfg OrderConfig) *orderService {
	svc := NewOrderService(fakeOrderRepo{store}, fakeMenuRepo{store}, fakeTransactor{store}, cfg).(*orderService)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func deliveryRequest(items ...CreateOrderItemRequest) CreateOrderRequest {
	return CreateOrderRequest{
		Customer:        models.CustomerInfo{Name: "Ada Obi", Phone: "+2348012345678"},
		OrderType:       models.OrderTypeDelivery,
		DeliveryAddress: &models.DeliveryAddress{Street: "1 Marina", City: "Lagos", PostalCode: "101001"},
		Items:           items,
	}
}

func TestCreateOrder_PricesSnapshotsAndEstimates(t *testing.T) {
	store := newFakeStore()
	burger := store.addMenuItem("Burger", 15000, 15, true)
	fries := store.addMenuItem("Fries", 8000, 20, true)
	for _, status := range []models.OrderStatus{models.OrderConfirmed, models.OrderConfirmed, models.OrderPreparing, models.OrderReady} {
		store.putOrder(models.Order{OrderNumber: "ORD-000000-" + string(status)[:3], Status: status})
	}
	svc := newTestOrderService(store, defaultOrderConfig())

	order, err := svc.CreateOrder(context.Background(), deliveryRequest(
		CreateOrderItemRequest{MenuItemID: burger.ID, Quantity: 2, Customizations: []string{" no onions ", ""}},
		CreateOrderItemRequest{MenuItemID: fries.ID, Quantity: 1},
	))
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}

	if order.Subtotal != 38000 || order.Tax != 2850 || order.DeliveryFee != 5000 || order.Total != 45850 {
		t.Errorf("totals = %d/%d/%d/%d, want 38000/2850/5000/45850", order.Subtotal, order.Tax, order.DeliveryFee, order.Total)
	}
	if order.Status != models.OrderPending {
		t.Errorf("status = %s, want PENDING", order.Status)
	}
	if !regexp.MustCompile(`^ORD-\d{6}-[A-Z0-9]{3}$`).MatchString(order.OrderNumber) {
		t.Errorf("order number %q has unexpected format", order.OrderNumber)
	}
	if want := fixedNow.Add(34 * time.Minute); !order.EstimatedReadyTime.Equal(want) {
		t.Errorf("estimated ready = %v, want %v", order.EstimatedReadyTime, want)
	}
	if len(order.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(order.Items))
	}
	first := order.Items[0]
	if first.MenuItemName != "Burger" || first.UnitPrice != 15000 || first.Subtotal != 30000 {
		t.Errorf("first item snapshot = %+v", first)
	}
	if len(first.Customizations) != 1 || first.Customizations[0] != "no onions" {
		t.Errorf("customizations = %q, want [no onions]", first.Customizations)
	}

	// Later price changes must not affect the stored order.
	store.mu.Lock()
	b := store.menu[burger.ID]
	b.Price = 99999
	store.menu[burger.ID] = b
	store.mu.Unlock()

	reloaded, err := svc.GetOrderByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("GetOrderByID() error = %v", err)
	}
	if reloaded.Items[0].UnitPrice != 15000 || reloaded.Total != 45850 {
		t.Errorf("stored order changed after menu price update: %+v", reloaded)
	}
}

func TestCreateOrder_PickupHasNoDeliveryFee(t *testing.T) {
	store := newFakeStore()
	item := store.addMenuItem("Wrap", 2500, 10, true)
	svc := newTestOrderService(store, defaultOrderConfig())

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		Customer:        models.CustomerInfo{Name: "Tunde", Phone: "08012345678"},
		OrderType:       models.OrderTypePickup,
		DeliveryAddress: &models.DeliveryAddress{Street: "ignored"},
		Items:           []CreateOrderItemRequest{{MenuItemID: item.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if order.DeliveryFee != 0 || order.Tax != 188 || order.Total != 2688 {
		t.Errorf("pickup totals = fee %d tax %d total %d, want 0/188/2688", order.DeliveryFee, order.Tax, order.Total)
	}
	if order.DeliveryAddress != nil {
		t.Error("pickup order kept a delivery address")
	}
	if want := fixedNow.Add(15 * time.Minute); !order.EstimatedReadyTime.Equal(want) {
		t.Errorf("estimated ready = %v, want %v", order.EstimatedReadyTime, want)
	}
}

func TestCreateOrder_Rejections(t *testing.T) {
	store := newFakeStore()
	available := store.addMenuItem("Burger", 15000, 15, true)
	soldOut := store.addMenuItem("Suya", 4000, 10, false)

	tests := []struct {
		name    string
		cfg     OrderConfig
		mutate  func(*CreateOrderRequest)
		wantErr error
		kind    ErrorKind
	}{
		{
			name:    "unavailable item rejects whole order",
			mutate:  func(r *CreateOrderRequest) { r.Items = append(r.Items, CreateOrderItemRequest{MenuItemID: soldOut.ID, Quantity: 1}) },
			wantErr: ErrMenuItemUnavailable,
			kind:    KindBusinessRule,
		},
		{
			name:    "missing menu item",
			mutate:  func(r *CreateOrderRequest) { r.Items[0].MenuItemID = 999 },
			wantErr: ErrMenuItemUnavailable,
			kind:    KindBusinessRule,
		},
		{
			name:   "delivery without address",
			mutate: func(r *CreateOrderRequest) { r.DeliveryAddress = nil },
			kind:   KindValidation,
		},
		{
			name:   "delivery with incomplete address",
			mutate: func(r *CreateOrderRequest) { r.DeliveryAddress.PostalCode = " " },
			kind:   KindValidation,
		},
		{
			name:   "quantity above maximum",
			mutate: func(r *CreateOrderRequest) { r.Items[0].Quantity = 11 },
			kind:   KindValidation,
		},
		{
			name:   "quantity zero",
			mutate: func(r *CreateOrderRequest) { r.Items[0].Quantity = 0 },
			kind:   KindValidation,
		},
		{
			name:   "no items",
			mutate: func(r *CreateOrderRequest) { r.Items = nil },
			kind:   KindValidation,
		},
		{
			name:   "missing customer name",
			mutate: func(r *CreateOrderRequest) { r.Customer.Name = "  " },
			kind:   KindValidation,
		},
		{
			name:   "invalid phone",
			mutate: func(r *CreateOrderRequest) { r.Customer.Phone = "12ab" },
			kind:   KindValidation,
		},
		{
			name:    "below minimum order",
			cfg:     OrderConfig{TaxRate: decimal.RequireFromString("0.075"), DeliveryFee: 5000, MinimumOrder: 20000},
			mutate:  func(r *CreateOrderRequest) {},
			wantErr: ErrBelowMinimumOrder,
			kind:    KindBusinessRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if cfg.TaxRate.IsZero() {
				cfg = defaultOrderConfig()
			}
			svc := newTestOrderService(store, cfg)
			req := deliveryRequest(CreateOrderItemRequest{MenuItemID: available.ID, Quantity: 1})
			tt.mutate(&req)
			before := store.orderCount()

			_, err := svc.CreateOrder(context.Background(), req)
			if err == nil {
				t.Fatal("CreateOrder() succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if !IsKind(err, tt.kind) {
				t.Errorf("kind = %v, want %v", KindOf(err), tt.kind)
			}
			if after := store.orderCount(); after != before {
				t.Errorf("orders persisted on failure: %d -> %d", before, after)
			}
		})
	}
}

func TestCreateOrder_RetriesOrderNumberCollisions(t *testing.T) {
	store := newFakeStore()
	item := store.addMenuItem("Burger", 15000, 15, true)
	svc := newTestOrderService(store, defaultOrderConfig())
	req := deliveryRequest(CreateOrderItemRequest{MenuItemID: item.ID, Quantity: 1})

	store.duplicateOrderNumbers = 2
	if _, err := svc.CreateOrder(context.Background(), req); err != nil {
		t.Fatalf("CreateOrder() after two collisions error = %v", err)
	}
	if store.orderCreateCalls != 3 {
		t.Errorf("create attempts = %d, want 3", store.orderCreateCalls)
	}

	store.duplicateOrderNumbers = 3
	_, err := svc.CreateOrder(context.Background(), req)
	if !errors.Is(err, repositories.ErrDuplicateKey) {
		t.Errorf("error after exhausting retries = %v, want ErrDuplicateKey", err)
	}
	if store.orderCount() != 1 {
		t.Errorf("orders = %d, want 1", store.orderCount())
	}
}

func TestUpdateOrderStatus_FollowsTransitionTable(t *testing.T) {
	for _, from := range models.AllOrderStatuses {
		for _, to := range models.AllOrderStatuses {
			from, to := from, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				store := newFakeStore()
				order := store.putOrder(models.Order{OrderNumber: "ORD-123456-ABC", Status: from})
				svc := newTestOrderService(store, defaultOrderConfig())

				updated, err := svc.UpdateOrderStatus(context.Background(), order.ID, to)
				if models.CanTransition(from, to) {
					if err != nil {
						t.Fatalf("legal transition rejected: %v", err)
					}
					if updated.Status != to || store.order(order.ID).Status != to {
						t.Errorf("status = %s (stored %s), want %s", updated.Status, store.order(order.ID).Status, to)
					}
					return
				}
				if !errors.Is(err, ErrIllegalTransition) {
					t.Fatalf("error = %v, want ErrIllegalTransition", err)
				}
				if got := store.order(order.ID).Status; got != from {
					t.Errorf("stored status changed to %s on rejection", got)
				}
			})
		}
	}
}

func TestUpdateOrderStatus_IllegalTransitionNamesAllowedStatuses(t *testing.T) {
	tests := []struct {
		from models.OrderStatus
		to   models.OrderStatus
		want string
	}{
		{models.OrderPreparing, models.OrderCompleted, "allowed: READY, CANCELLED"},
		{models.OrderCompleted, models.OrderPending, "allowed: none"},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			store := newFakeStore()
			order := store.putOrder(models.Order{OrderNumber: "ORD-123456-ABC", Status: tt.from})
			svc := newTestOrderService(store, defaultOrderConfig())

			_, err := svc.UpdateOrderStatus(context.Background(), order.ID, tt.to)
			var svcErr *Error
			if !errors.As(err, &svcErr) || !strings.Contains(svcErr.Detail, tt.want) {
				t.Errorf("error = %v, want detail containing %q", err, tt.want)
			}
		})
	}
}

func TestUpdateOrderStatus_NotFoundAndInvalid(t *testing.T) {
	svc := newTestOrderService(newFakeStore(), defaultOrderConfig())

	if _, err := svc.UpdateOrderStatus(context.Background(), 42, models.OrderConfirmed); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("missing order error = %v, want ErrOrderNotFound", err)
	}
	if _, err := svc.UpdateOrderStatus(context.Background(), 42, "SHIPPED"); !IsKind(err, KindValidation) {
		t.Errorf("unknown status error kind = %v, want validation", KindOf(err))
	}
}

func TestUpdateOrderStatus_ConcurrentUpdatesTransitionOnce(t *testing.T) {
	store := newFakeStore()
	order := store.putOrder(models.Order{OrderNumber: "ORD-123456-ABC", Status: models.OrderPreparing})
	svc := newTestOrderService(store, defaultOrderConfig())

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.UpdateOrderStatus(context.Background(), order.ID, models.OrderReady); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// READY -> READY is not in the table, so only the first writer wins.
	if succeeded != 1 {
		t.Errorf("successful updates = %d, want 1", succeeded)
	}
	if got := store.order(order.ID).Status; got != models.OrderReady {
		t.Errorf("final status = %s, want READY", got)
	}
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		from    models.OrderStatus
		wantErr error
	}{
		{from: models.OrderPending},
		{from: models.OrderConfirmed},
		{from: models.OrderPreparing},
		{from: models.OrderReady, wantErr: ErrOrderNotCancellable},
		{from: models.OrderCompleted, wantErr: ErrOrderNotCancellable},
		{from: models.OrderCancelled, wantErr: ErrOrderNotCancellable},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			store := newFakeStore()
			order := store.putOrder(models.Order{OrderNumber: "ORD-123456-ABC", Status: tt.from})
			svc := newTestOrderService(store, defaultOrderConfig())
			reason := "  customer changed their mind "

			updated, err := svc.CancelOrder(context.Background(), order.ID, &reason)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				if store.order(order.ID).Status != tt.from {
					t.Error("stored status changed on rejected cancel")
				}
				return
			}
			if err != nil {
				t.Fatalf("CancelOrder() error = %v", err)
			}
			if updated.Status != models.OrderCancelled {
				t.Errorf("status = %s, want CANCELLED", updated.Status)
			}
			stored := store.order(order.ID)
			if stored.CancellationReason == nil || *stored.CancellationReason != "customer changed their mind" {
				t.Errorf("stored reason = %v", stored.CancellationReason)
			}
		})
	}
}

func TestTrackOrder(t *testing.T) {
	store := newFakeStore()
	active := store.putOrder(models.Order{
		OrderNumber: "ORD-111111-AAA", Status: models.OrderPreparing,
		EstimatedReadyTime: fixedNow.Add(12*time.Minute + 10*time.Second),
	})
	done := store.putOrder(models.Order{
		OrderNumber: "ORD-222222-BBB", Status: models.OrderCompleted,
		EstimatedReadyTime: fixedNow.Add(30 * time.Minute),
	})
	svc := newTestOrderService(store, defaultOrderConfig())

	tracking, err := svc.TrackOrder(context.Background(), "ord-111111-aaa")
	if err != nil {
		t.Fatalf("TrackOrder() error = %v", err)
	}
	if tracking.OrderNumber != active.OrderNumber || tracking.MinutesRemaining != 13 {
		t.Errorf("tracking = %+v, want 13 minutes remaining", tracking)
	}

	tracking, err = svc.TrackOrder(context.Background(), done.OrderNumber)
	if err != nil {
		t.Fatalf("TrackOrder() error = %v", err)
	}
	if tracking.MinutesRemaining != 0 {
		t.Errorf("completed order minutes remaining = %d, want 0", tracking.MinutesRemaining)
	}

	if _, err := svc.TrackOrder(context.Background(), "ORD-000000-ZZZ"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("unknown number error = %v, want ErrOrderNotFound", err)
	}
}

func TestGetOrders_ValidatesFilters(t *testing.T) {
	store := newFakeStore()
	store.putOrder(models.Order{OrderNumber: "ORD-111111-AAA", Status: models.OrderPending})
	store.putOrder(models.Order{OrderNumber: "ORD-222222-BBB", Status: models.OrderReady})
	svc := newTestOrderService(store, defaultOrderConfig())

	ready := models.OrderReady
	orders, total, err := svc.GetOrders(context.Background(), models.OrderFilters{Status: &ready})
	if err != nil {
		t.Fatalf("GetOrders() error = %v", err)
	}
	if total != 1 || len(orders) != 1 || orders[0].Status != models.OrderReady {
		t.Errorf("GetOrders(READY) = %d orders, total %d", len(orders), total)
	}

	bogus := models.OrderStatus("LOST")
	if _, _, err := svc.GetOrders(context.Background(), models.OrderFilters{Status: &bogus}); !IsKind(err, KindValidation) {
		t.Errorf("unknown status filter error = %v", err)
	}
	badDate := "14/03/2025"
	if _, _, err := svc.GetOrders(context.Background(), models.OrderFilters{Date: &badDate}); !IsKind(err, KindValidation) {
		t.Errorf("bad date filter error = %v", err)
	}
}

func TestConfirmPaidOrder(t *testing.T) {
	store := newFakeStore()
	pending := store.putOrder(models.Order{OrderNumber: "ORD-111111-AAA", Status: models.OrderPending})
	preparing := store.putOrder(models.Order{OrderNumber: "ORD-222222-BBB", Status: models.OrderPreparing})
	svc := newTestOrderService(store, defaultOrderConfig())

	changed, err := svc.ConfirmPaidOrder(context.Background(), nil, pending.ID)
	if err != nil || !changed {
		t.Fatalf("ConfirmPaidOrder(pending) = %v, %v", changed, err)
	}
	if store.order(pending.ID).Status != models.OrderConfirmed {
		t.Errorf("pending order status = %s, want CONFIRMED", store.order(pending.ID).Status)
	}

	changed, err = svc.ConfirmPaidOrder(context.Background(), nil, preparing.ID)
	if err != nil || changed {
		t.Errorf("ConfirmPaidOrder(preparing) = %v, %v, want no-op", changed, err)
	}
	if store.order(preparing.ID).Status != models.OrderPreparing {
		t.Error("order past PENDING was modified")
	}
}
