package catalog

import (
	"context"
	"testing"
)

func seededStore(t *testing.T) *BleveStore {
	t.Helper()
	store, err := NewBleveStore()
	if err != nil {
		t.Fatalf("NewBleveStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	err = store.Seed([]Product{
		{ID: "p1", Name: "Pixel 9", Category: "smartphones", Brand: "Google", Price: 799, Rating: 4.6, InStock: true},
		{ID: "p2", Name: "Galaxy S24", Category: "smartphones", Brand: "Samsung", Price: 899, Rating: 4.5, InStock: true},
		{ID: "p3", Name: "Budget Phone", Category: "smartphones", Brand: "Nokia", Price: 199, Rating: 3.9, InStock: false},
		{ID: "p4", Name: "ThinkPad X1", Category: "laptops", Brand: "Lenovo", Price: 1400, Rating: 4.7, InStock: true},
	})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	return store
}

func TestFilterSearchByCategoryAndPrice(t *testing.T) {
	store := seededStore(t)

	got, err := store.FilterSearch(context.Background(), Filter{
		Category: "smartphones",
		PriceMax: 850,
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("FilterSearch() error = %v", err)
	}
	for _, p := range got {
		if p.Category != "smartphones" {
			t.Fatalf("category = %q, want smartphones", p.Category)
		}
		if p.Price > 850 {
			t.Fatalf("price = %v exceeds max 850", p.Price)
		}
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (p1 and p3)", len(got))
	}
}

func TestFilterSearchInStockOnly(t *testing.T) {
	store := seededStore(t)

	got, err := store.FilterSearch(context.Background(), Filter{
		Category:    "smartphones",
		InStockOnly: true,
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("FilterSearch() error = %v", err)
	}
	for _, p := range got {
		if !p.InStock {
			t.Fatalf("product %s is out of stock", p.ID)
		}
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestFilterSearchCaseInsensitiveBrand(t *testing.T) {
	store := seededStore(t)

	got, err := store.FilterSearch(context.Background(), Filter{Brand: "SAMSUNG", Limit: 10})
	if err != nil {
		t.Fatalf("FilterSearch() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "p2" {
		t.Fatalf("got %+v, want only p2", got)
	}
}

func TestGetByIDsPreservesOrder(t *testing.T) {
	store := seededStore(t)

	got, err := store.GetByIDs(context.Background(), []string{"p4", "p1", "missing"})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "p4" || got[1].ID != "p1" {
		t.Fatalf("got ids %v, want [p4 p1]", []string{got[0].ID, got[1].ID})
	}
}
