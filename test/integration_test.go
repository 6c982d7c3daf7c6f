//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-aggregate/internal/domain"
	"github.com/joao-fontenele/orderflow-aggregate/internal/messaging"
	"github.com/joao-fontenele/orderflow-aggregate/internal/orders"
	"github.com/joao-fontenele/orderflow-aggregate/internal/orders/repotest"
)

func setupOrdersDB(ctx context.Context, t *testing.T) *sql.DB {
	t.Helper()

	pg := SetupPostgres(ctx, t)
	t.Cleanup(pg.Cleanup)

	db, err := DBWithSchema(pg.ConnStr, "orders")
	if err != nil {
		t.Fatalf("failed to create orders DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestPostgresOrderRepository(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := orders.NewPostgresStore(setupOrdersDB(ctx, t))

	repotest.Run(t, store.NewOrderRepository)
}

func TestPostgresSchemaConstraints(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := setupOrdersDB(ctx, t)

	_, err := db.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, total_amount, currency, version)
		VALUES ($1, $2, -1, 'USD', 1)
	`, domain.NewOrderID().UUID(), domain.NewCustomerID().UUID())
	if err == nil {
		t.Fatal("expected negative total to violate the check constraint")
	}

	orderID := domain.NewOrderID().UUID()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, total_amount, currency, version)
		VALUES ($1, $2, 0, 'USD', 1)
	`, orderID, domain.NewCustomerID().UUID()); err != nil {
		t.Fatalf("failed to insert order: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO order_items (order_id, position, product_id, quantity, unit_price, currency)
		VALUES ($1, 0, $2, 0, 1, 'USD')
	`, orderID, domain.NewProductID().UUID())
	if err == nil {
		t.Fatal("expected zero quantity to violate the check constraint")
	}
}

func TestPostgresList(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := orders.NewPostgresStore(setupOrdersDB(ctx, t))

	price, err := domain.NewMoney(decimal.RequireFromString("4.20"), "USD")
	if err != nil {
		t.Fatal(err)
	}

	var ids []domain.OrderID
	for i := range 3 {
		order := domain.NewOrder(domain.NewOrderID(), domain.NewCustomerID())
		for range i {
			if err := order.AddItem(domain.NewProductID(), 1, price); err != nil {
				t.Fatal(err)
			}
		}

		repo := store.NewOrderRepository()
		repo.Add(order)
		if err := repo.SaveChanges(ctx); err != nil {
			t.Fatalf("failed to save order: %v", err)
		}
		ids = append(ids, order.ID())
	}

	summaries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}

	if len(summaries) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(summaries))
	}
	if summaries[0].ID != ids[2] || summaries[0].ItemCount != 2 {
		t.Errorf("expected newest order first with 2 items, got %+v", summaries[0])
	}
	if !summaries[0].TotalAmount.Equal(decimal.RequireFromString("8.40")) {
		t.Errorf("expected total 8.40, got %s", summaries[0].TotalAmount)
	}
}

func TestOrderEventsPublished(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	db := setupOrdersDB(ctx, t)

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	const topic = "order.events"
	producer := messaging.NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	handler, err := orders.NewHandler(orders.NewPostgresStore(db), producer, slog.Default())
	if err != nil {
		t.Fatalf("failed to create handler: %v", err)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	body := `{
		"customer_id": "` + domain.NewCustomerID().String() + `",
		"items": [{"product_id": "` + domain.NewProductID().String() + `", "quantity": 2, "unit_price": "12.50", "currency": "USD"}]
	}`
	resp, err := http.Post(server.URL+"/orders", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}

	addResp, err := http.Post(server.URL+"/orders/"+created.ID+"/shipping-addresses", "application/json",
		strings.NewReader(`{"street": "1 Main St", "city": "Springfield", "country": "US", "zip_code": "12345"}`))
	if err != nil {
		t.Fatalf("failed to add address: %v", err)
	}
	_ = addResp.Body.Close()
	if addResp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, addResp.StatusCode)
	}

	consumer := messaging.NewConsumer(brokers, topic, "integration-test", messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stopConsuming := context.WithTimeout(ctx, time.Minute)
	defer stopConsuming()

	var received []messaging.Message
	errDone := errors.New("done")
	err = consumer.Consume(consumeCtx, func(_ context.Context, msg messaging.Message) error {
		received = append(received, msg)
		if len(received) == 2 {
			return errDone
		}
		return nil
	})
	if !errors.Is(err, errDone) {
		t.Fatalf("expected two events, got %d before: %v", len(received), err)
	}

	if received[0].Key != created.ID || received[1].Key != created.ID {
		t.Errorf("expected events keyed by order id %s, got %s and %s", created.ID, received[0].Key, received[1].Key)
	}
	if received[0].EventType != domain.EventOrderCreated || received[1].EventType != domain.EventShippingAddressAdded {
		t.Errorf("unexpected event order: %s, %s", received[0].EventType, received[1].EventType)
	}

	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(received[0].Payload, &event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.OrderID != created.ID || !event.TotalAmount.Equal(decimal.RequireFromString("25")) || len(event.Items) != 1 {
		t.Errorf("unexpected created event: %+v", event)
	}
}
