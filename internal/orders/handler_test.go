package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-aggregate/internal/domain"
)

type publishedEvent struct {
	key   string
	event any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{key: key, event: event})
	return p.err
}

// conflictStore hands out repositories whose commits always lose the race.
type conflictStore struct {
	*MemoryStore
}

func (s conflictStore) NewOrderRepository() domain.OrderRepository {
	return conflictRepository{s.MemoryStore.NewOrderRepository()}
}

type conflictRepository struct {
	domain.OrderRepository
}

func (conflictRepository) SaveChanges(context.Context) error {
	return domain.NewPersistenceError("save changes", domain.ErrConcurrencyConflict)
}

func newTestServer(t *testing.T, store Store, publisher Publisher) *http.ServeMux {
	t.Helper()

	handler, err := NewHandler(store, publisher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func serve(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) orderResponse {
	t.Helper()
	var resp orderResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func createOrder(t *testing.T, mux *http.ServeMux, body string) orderResponse {
	t.Helper()
	rec := serve(mux, http.MethodPost, "/orders", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decodeOrder(t, rec)
}

const productA = "5f0c4d1e-8f5b-4c32-9d1b-2a4e6f7a8b90"

func TestHandler_HandleCreate(t *testing.T) {
	customerID := domain.NewCustomerID().String()

	t.Run("creates an order with items and addresses", func(t *testing.T) {
		publisher := &fakePublisher{}
		mux := newTestServer(t, NewMemoryStore(), publisher)

		rec := serve(mux, http.MethodPost, "/orders", `{
			"customer_id": "`+customerID+`",
			"items": [
				{"product_id": "`+productA+`", "quantity": 2, "unit_price": "10.50", "currency": "USD"},
				{"product_id": "`+domain.NewProductID().String()+`", "quantity": 1, "unit_price": "4.00", "currency": "USD"}
			],
			"shipping_addresses": [
				{"street": "1 Main St", "city": "Springfield", "country": "US", "zip_code": "12345"}
			]
		}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got %s", rec.Header().Get("Content-Type"))
		}

		resp := decodeOrder(t, rec)
		if rec.Header().Get("Location") != "/orders/"+resp.ID {
			t.Errorf("unexpected Location header: %s", rec.Header().Get("Location"))
		}
		if resp.CustomerID != customerID {
			t.Errorf("expected customer %s, got %s", customerID, resp.CustomerID)
		}
		if !resp.TotalAmount.Equal(decimal.RequireFromString("25.00")) || resp.Currency != "USD" {
			t.Errorf("expected total 25.00 USD, got %s %s", resp.TotalAmount, resp.Currency)
		}
		if len(resp.Items) != 2 {
			t.Fatalf("expected 2 items, got %d", len(resp.Items))
		}
		if !resp.Items[0].Subtotal.Equal(decimal.RequireFromString("21")) {
			t.Errorf("expected first subtotal 21, got %s", resp.Items[0].Subtotal)
		}
		if len(resp.ShippingAddresses) != 1 || resp.ShippingAddresses[0].City != "Springfield" {
			t.Errorf("unexpected shipping addresses: %+v", resp.ShippingAddresses)
		}

		if len(publisher.events) != 1 {
			t.Fatalf("expected 1 published event, got %d", len(publisher.events))
		}
		event, ok := publisher.events[0].event.(domain.OrderCreatedEvent)
		if !ok {
			t.Fatalf("expected OrderCreatedEvent, got %T", publisher.events[0].event)
		}
		if publisher.events[0].key != resp.ID || event.Type != domain.EventOrderCreated {
			t.Errorf("unexpected event: key=%s type=%s", publisher.events[0].key, event.Type)
		}
	})

	t.Run("creates an empty order", func(t *testing.T) {
		mux := newTestServer(t, NewMemoryStore(), nil)

		resp := createOrder(t, mux, `{"customer_id": "`+customerID+`"}`)

		if !resp.TotalAmount.IsZero() || resp.Currency != domain.DefaultCurrency {
			t.Errorf("expected zero total in %s, got %s %s", domain.DefaultCurrency, resp.TotalAmount, resp.Currency)
		}
		if len(resp.Items) != 0 || len(resp.ShippingAddresses) != 0 {
			t.Errorf("expected no items or addresses, got %+v", resp)
		}
	})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"malformed customer id", `{"customer_id": "nope"}`},
		{"zero quantity", `{"customer_id": "` + customerID + `", "items": [{"product_id": "` + productA + `", "quantity": 0, "unit_price": "1", "currency": "USD"}]}`},
		{"negative price", `{"customer_id": "` + customerID + `", "items": [{"product_id": "` + productA + `", "quantity": 1, "unit_price": "-1", "currency": "USD"}]}`},
		{"mixed currencies", `{"customer_id": "` + customerID + `", "items": [
			{"product_id": "` + productA + `", "quantity": 1, "unit_price": "1", "currency": "USD"},
			{"product_id": "` + productA + `", "quantity": 1, "unit_price": "1", "currency": "EUR"}]}`},
		{"empty address", `{"customer_id": "` + customerID + `", "shipping_addresses": [{"street": " "}]}`},
		{"sub-cent price", `{"customer_id": "` + customerID + `", "items": [{"product_id": "` + productA + `", "quantity": 1, "unit_price": "0.001", "currency": "USD"}]}`},
		{"street too long", `{"customer_id": "` + customerID + `", "shipping_addresses": [{"street": "` + strings.Repeat("x", 201) + `", "city": "Springfield"}]}`},
	}

	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			publisher := &fakePublisher{}
			mux := newTestServer(t, store, publisher)

			rec := serve(mux, http.MethodPost, "/orders", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
			}
			summaries, _ := store.List(context.Background())
			if len(summaries) != 0 {
				t.Errorf("expected nothing stored, got %d orders", len(summaries))
			}
			if len(publisher.events) != 0 {
				t.Errorf("expected no events, got %d", len(publisher.events))
			}
		})
	}

	t.Run("publish failure does not fail the request", func(t *testing.T) {
		store := NewMemoryStore()
		mux := newTestServer(t, store, &fakePublisher{err: errors.New("broker down")})

		createOrder(t, mux, `{"customer_id": "`+customerID+`"}`)

		summaries, _ := store.List(context.Background())
		if len(summaries) != 1 {
			t.Errorf("expected 1 stored order, got %d", len(summaries))
		}
	})
}

func TestHandler_HandleGet(t *testing.T) {
	mux := newTestServer(t, NewMemoryStore(), nil)
	created := createOrder(t, mux, `{
		"customer_id": "`+domain.NewCustomerID().String()+`",
		"items": [{"product_id": "`+productA+`", "quantity": 3, "unit_price": "1.25", "currency": "USD"}]
	}`)

	t.Run("returns a stored order", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/orders/"+created.ID, "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		resp := decodeOrder(t, rec)
		if resp.ID != created.ID {
			t.Errorf("expected id %s, got %s", created.ID, resp.ID)
		}
		if !resp.TotalAmount.Equal(decimal.RequireFromString("3.75")) || resp.Currency != "USD" {
			t.Errorf("expected total 3.75 USD, got %s %s", resp.TotalAmount, resp.Currency)
		}
		if len(resp.Items) != 1 || resp.Items[0].ProductID != productA || resp.Items[0].Quantity != 3 {
			t.Errorf("unexpected items: %+v", resp.Items)
		}
	})

	t.Run("returns 404 for unknown order", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/orders/"+domain.NewOrderID().String(), "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("returns 400 for malformed id", func(t *testing.T) {
		rec := serve(mux, http.MethodGet, "/orders/not-a-uuid", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleList(t *testing.T) {
	mux := newTestServer(t, NewMemoryStore(), nil)

	rec := serve(mux, http.MethodGet, "/orders", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", rec.Body.String())
	}

	first := createOrder(t, mux, `{"customer_id": "`+domain.NewCustomerID().String()+`"}`)
	second := createOrder(t, mux, `{
		"customer_id": "`+domain.NewCustomerID().String()+`",
		"items": [{"product_id": "`+productA+`", "quantity": 1, "unit_price": "9.99", "currency": "USD"}]
	}`)

	rec = serve(mux, http.MethodGet, "/orders", "")
	var summaries []orderSummaryResponse
	if err := json.NewDecoder(rec.Body).Decode(&summaries); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(summaries) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(summaries))
	}
	if summaries[0].ID != second.ID || summaries[1].ID != first.ID {
		t.Errorf("expected newest first, got %s then %s", summaries[0].ID, summaries[1].ID)
	}
	if summaries[0].ItemCount != 1 || !summaries[0].TotalAmount.Equal(decimal.RequireFromString("9.99")) {
		t.Errorf("unexpected summary: %+v", summaries[0])
	}
}

func TestHandler_HandleAddItem(t *testing.T) {
	t.Run("adds an item and updates the total", func(t *testing.T) {
		publisher := &fakePublisher{}
		mux := newTestServer(t, NewMemoryStore(), publisher)
		created := createOrder(t, mux, `{
			"customer_id": "`+domain.NewCustomerID().String()+`",
			"items": [{"product_id": "`+productA+`", "quantity": 1, "unit_price": "10.00", "currency": "USD"}]
		}`)

		rec := serve(mux, http.MethodPost, "/orders/"+created.ID+"/items",
			`{"product_id": "`+productA+`", "quantity": 3, "unit_price": "2.50", "currency": "USD"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decodeOrder(t, rec)
		if !resp.TotalAmount.Equal(decimal.RequireFromString("17.50")) {
			t.Errorf("expected total 17.50, got %s", resp.TotalAmount)
		}

		stored := decodeOrder(t, serve(mux, http.MethodGet, "/orders/"+created.ID, ""))
		if len(stored.Items) != 2 || !stored.TotalAmount.Equal(resp.TotalAmount) {
			t.Errorf("expected the item to be persisted, got %+v", stored)
		}

		if len(publisher.events) != 2 {
			t.Fatalf("expected 2 published events, got %d", len(publisher.events))
		}
		event, ok := publisher.events[1].event.(domain.OrderItemAddedEvent)
		if !ok || event.Item.Quantity != 3 {
			t.Errorf("unexpected item event: %+v", publisher.events[1].event)
		}
	})

	t.Run("rejects a currency mismatch and keeps the stored order", func(t *testing.T) {
		mux := newTestServer(t, NewMemoryStore(), nil)
		created := createOrder(t, mux, `{
			"customer_id": "`+domain.NewCustomerID().String()+`",
			"items": [{"product_id": "`+productA+`", "quantity": 1, "unit_price": "10.00", "currency": "USD"}]
		}`)

		rec := serve(mux, http.MethodPost, "/orders/"+created.ID+"/items",
			`{"product_id": "`+productA+`", "quantity": 1, "unit_price": "1.00", "currency": "EUR"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
		stored := decodeOrder(t, serve(mux, http.MethodGet, "/orders/"+created.ID, ""))
		if len(stored.Items) != 1 || !stored.TotalAmount.Equal(decimal.RequireFromString("10")) {
			t.Errorf("expected stored order unchanged, got %+v", stored)
		}
	})

	t.Run("rejects a sub-cent price as bad input", func(t *testing.T) {
		var logs bytes.Buffer
		handler, err := NewHandler(NewMemoryStore(), nil, slog.New(slog.NewTextHandler(&logs, nil)))
		if err != nil {
			t.Fatalf("NewHandler: %v", err)
		}
		mux := http.NewServeMux()
		handler.RegisterRoutes(mux)

		created := createOrder(t, mux, `{
			"customer_id": "`+domain.NewCustomerID().String()+`",
			"items": [{"product_id": "`+productA+`", "quantity": 1, "unit_price": "10.00", "currency": "USD"}]
		}`)

		rec := serve(mux, http.MethodPost, "/orders/"+created.ID+"/items",
			`{"product_id": "`+productA+`", "quantity": 1, "unit_price": "0.001", "currency": "USD"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
		}
		if strings.Contains(logs.String(), "level=ERROR") {
			t.Errorf("expected no error log for bad input, got %s", logs.String())
		}
		stored := decodeOrder(t, serve(mux, http.MethodGet, "/orders/"+created.ID, ""))
		if len(stored.Items) != 1 || !stored.TotalAmount.Equal(decimal.RequireFromString("10")) {
			t.Errorf("expected stored order unchanged, got %+v", stored)
		}
	})

	t.Run("returns 404 for unknown order", func(t *testing.T) {
		mux := newTestServer(t, NewMemoryStore(), nil)
		rec := serve(mux, http.MethodPost, "/orders/"+domain.NewOrderID().String()+"/items",
			`{"product_id": "`+productA+`", "quantity": 1, "unit_price": "1.00", "currency": "USD"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("returns 409 when the commit conflicts", func(t *testing.T) {
		store := NewMemoryStore()
		created := createOrder(t, newTestServer(t, store, nil), `{"customer_id": "`+domain.NewCustomerID().String()+`"}`)

		mux := newTestServer(t, conflictStore{store}, nil)
		rec := serve(mux, http.MethodPost, "/orders/"+created.ID+"/items",
			`{"product_id": "`+productA+`", "quantity": 1, "unit_price": "1.00", "currency": "USD"}`)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
	})
}

func TestHandler_HandleAddShippingAddress(t *testing.T) {
	publisher := &fakePublisher{}
	mux := newTestServer(t, NewMemoryStore(), publisher)
	created := createOrder(t, mux, `{"customer_id": "`+domain.NewCustomerID().String()+`"}`)
	target := "/orders/" + created.ID + "/shipping-addresses"

	rec := serve(mux, http.MethodPost, target, `{"street": "1 Main St", "city": "Springfield", "country": "US", "zip_code": "12345"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = serve(mux, http.MethodPost, target, `{"street": "2 Side St", "city": "Shelbyville", "country": "US", "zip_code": "54321"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored := decodeOrder(t, serve(mux, http.MethodGet, "/orders/"+created.ID, ""))
	if len(stored.ShippingAddresses) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(stored.ShippingAddresses))
	}
	if stored.ShippingAddresses[0].City != "Springfield" || stored.ShippingAddresses[1].City != "Shelbyville" {
		t.Errorf("expected insertion order, got %+v", stored.ShippingAddresses)
	}

	rec = serve(mux, http.MethodPost, target, `{"street": "", "city": "", "country": "", "zip_code": ""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for empty address, got %d", rec.Code)
	}

	if len(publisher.events) != 3 {
		t.Errorf("expected 3 published events, got %d", len(publisher.events))
	}
}
