// Package repotest checks that an OrderRepository implementation honours the
// repository contract. Storage adapters run it from their own tests.
package repotest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-aggregate/internal/domain"
)

// Run executes the contract suite. newRepo must return a fresh unit of work
// over the same backing store on every call.
func Run(t *testing.T, newRepo func() domain.OrderRepository) {
	t.Run("absent order returns nil without error", func(t *testing.T) {
		order, err := newRepo().GetByID(context.Background(), domain.NewOrderID())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order != nil {
			t.Fatalf("expected no order, got %s", order.ID())
		}
	})

	t.Run("round trip keeps items, addresses and total", func(t *testing.T) {
		ctx := context.Background()
		order := buildOrder(t, []string{"10.00", "5.00", "0.99"}, 2)

		repo := newRepo()
		repo.Add(order)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save order: %v", err)
		}

		loaded, err := newRepo().GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		if loaded == nil {
			t.Fatal("order not found after save")
		}
		assertSameOrder(t, order, loaded)
	})

	t.Run("empty order round trips with zero total", func(t *testing.T) {
		ctx := context.Background()
		order := domain.NewOrder(domain.NewOrderID(), domain.NewCustomerID())

		repo := newRepo()
		repo.Add(order)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save order: %v", err)
		}

		loaded, err := newRepo().GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		assertSameOrder(t, order, loaded)
	})

	t.Run("changes to a loaded order are persisted", func(t *testing.T) {
		ctx := context.Background()
		order := buildOrder(t, []string{"10.00"}, 1)

		repo := newRepo()
		repo.Add(order)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save order: %v", err)
		}

		repo = newRepo()
		loaded, err := repo.GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		if err := loaded.AddItem(domain.NewProductID(), 3, money(t, "2.50", "USD")); err != nil {
			t.Fatalf("failed to add item: %v", err)
		}
		if err := loaded.AddShippingAddress(domain.NewAddress("9 Side St", "Lyon", "FR", "69001")); err != nil {
			t.Fatalf("failed to add address: %v", err)
		}
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save changes: %v", err)
		}

		reloaded, err := newRepo().GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to reload order: %v", err)
		}
		assertSameOrder(t, loaded, reloaded)
		if !reloaded.TotalPrice().Equal(money(t, "17.50", "USD")) {
			t.Errorf("expected total 17.50 USD, got %s", reloaded.TotalPrice())
		}
	})

	t.Run("saving twice does not duplicate rows", func(t *testing.T) {
		ctx := context.Background()
		order := buildOrder(t, []string{"1.00", "2.00"}, 1)

		repo := newRepo()
		repo.Add(order)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save order: %v", err)
		}
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save again: %v", err)
		}

		loaded, err := newRepo().GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		assertSameOrder(t, order, loaded)
	})

	t.Run("repeated loads return the tracked instance", func(t *testing.T) {
		ctx := context.Background()
		order := buildOrder(t, []string{"1.00"}, 0)

		repo := newRepo()
		repo.Add(order)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save order: %v", err)
		}

		repo = newRepo()
		first, err := repo.GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		second, err := repo.GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		if first != second {
			t.Error("expected the same instance within one unit of work")
		}
	})

	t.Run("stale update is rejected as a concurrency conflict", func(t *testing.T) {
		ctx := context.Background()
		order := buildOrder(t, []string{"1.00"}, 0)

		repo := newRepo()
		repo.Add(order)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save order: %v", err)
		}

		repoA, repoB := newRepo(), newRepo()
		a, err := repoA.GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		b, err := repoB.GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}

		if err := a.AddItem(domain.NewProductID(), 1, money(t, "2.00", "USD")); err != nil {
			t.Fatalf("failed to add item: %v", err)
		}
		if err := b.AddItem(domain.NewProductID(), 1, money(t, "3.00", "USD")); err != nil {
			t.Fatalf("failed to add item: %v", err)
		}

		if err := repoA.SaveChanges(ctx); err != nil {
			t.Fatalf("first save failed: %v", err)
		}
		err = repoB.SaveChanges(ctx)
		if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, domain.ErrConcurrencyConflict) {
			t.Fatalf("expected a concurrency conflict persistence error, got %v", err)
		}

		stored, err := newRepo().GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to reload order: %v", err)
		}
		assertSameOrder(t, a, stored)
	})

	t.Run("failed commit applies nothing", func(t *testing.T) {
		ctx := context.Background()
		existing := buildOrder(t, []string{"1.00"}, 0)

		repo := newRepo()
		repo.Add(existing)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save order: %v", err)
		}

		fresh := buildOrder(t, []string{"4.00"}, 1)
		duplicate := domain.NewOrder(existing.ID(), domain.NewCustomerID())

		repo = newRepo()
		repo.Add(fresh)
		repo.Add(duplicate)
		err := repo.SaveChanges(ctx)
		if !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected a persistence error, got %v", err)
		}

		got, err := newRepo().GetByID(ctx, fresh.ID())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Error("expected the order registered in the failed commit not to be stored")
		}
	})

	t.Run("multi-byte addresses at the column limits round trip", func(t *testing.T) {
		ctx := context.Background()
		order := domain.NewOrder(domain.NewOrderID(), domain.NewCustomerID())
		address := domain.NewAddress(
			strings.Repeat("é", 200),
			strings.Repeat("ü", 100),
			"Côte d'Ivoire",
			strings.Repeat("ß", 20),
		)
		if err := order.AddShippingAddress(address); err != nil {
			t.Fatalf("failed to add address: %v", err)
		}

		repo := newRepo()
		repo.Add(order)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save order: %v", err)
		}

		got, err := newRepo().GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("failed to load order: %v", err)
		}
		assertSameOrder(t, order, got)
	})

	t.Run("amounts beyond two fractional digits are rejected", func(t *testing.T) {
		ctx := context.Background()
		order := domain.NewOrder(domain.NewOrderID(), domain.NewCustomerID())
		if err := order.AddItem(domain.NewProductID(), 1, money(t, "0.001", "USD")); err != nil {
			t.Fatalf("failed to add item: %v", err)
		}

		repo := newRepo()
		repo.Add(order)
		if err := repo.SaveChanges(ctx); !errors.Is(err, domain.ErrPersistence) {
			t.Fatalf("expected a persistence error, got %v", err)
		}

		got, err := newRepo().GetByID(ctx, order.ID())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Error("expected the rejected order not to be stored")
		}
	})
}

func money(t *testing.T, amount, currency string) domain.Money {
	t.Helper()
	m, err := domain.NewMoney(decimal.RequireFromString(amount), currency)
	if err != nil {
		t.Fatalf("failed to build money: %v", err)
	}
	return m
}

func buildOrder(t *testing.T, prices []string, addresses int) *domain.Order {
	t.Helper()

	order := domain.NewOrder(domain.NewOrderID(), domain.NewCustomerID())
	for i, price := range prices {
		if err := order.AddItem(domain.NewProductID(), i+1, money(t, price, "USD")); err != nil {
			t.Fatalf("failed to add item: %v", err)
		}
	}

	cities := []string{"Springfield", "Shelbyville", "Ogdenville"}
	for i := 0; i < addresses; i++ {
		a := domain.NewAddress("742 Evergreen Terrace", cities[i%len(cities)], "US", "49007")
		if err := order.AddShippingAddress(a); err != nil {
			t.Fatalf("failed to add address: %v", err)
		}
	}

	return order
}

func assertSameOrder(t *testing.T, want, got *domain.Order) {
	t.Helper()

	if got == nil {
		t.Fatal("expected an order, got nil")
	}
	if got.ID() != want.ID() {
		t.Errorf("expected id %s, got %s", want.ID(), got.ID())
	}
	if got.CustomerID() != want.CustomerID() {
		t.Errorf("expected customer %s, got %s", want.CustomerID(), got.CustomerID())
	}
	if !got.TotalPrice().Equal(want.TotalPrice()) {
		t.Errorf("expected total %s, got %s", want.TotalPrice(), got.TotalPrice())
	}

	wantItems, gotItems := want.Items(), got.Items()
	if len(gotItems) != len(wantItems) {
		t.Fatalf("expected %d items, got %d", len(wantItems), len(gotItems))
	}
	for _, w := range wantItems {
		found := false
		for _, g := range gotItems {
			if g.ProductID() == w.ProductID() && g.Quantity() == w.Quantity() && g.UnitPrice().Equal(w.UnitPrice()) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("item for product %s not found after load", w.ProductID())
		}
	}

	wantAddresses, gotAddresses := want.ShippingAddresses(), got.ShippingAddresses()
	if len(gotAddresses) != len(wantAddresses) {
		t.Fatalf("expected %d addresses, got %d", len(wantAddresses), len(gotAddresses))
	}
	for i := range wantAddresses {
		if !gotAddresses[i].Equal(wantAddresses[i]) {
			t.Errorf("address %d: expected %+v, got %+v", i, wantAddresses[i], gotAddresses[i])
		}
	}
}
