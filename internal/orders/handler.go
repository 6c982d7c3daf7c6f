package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-aggregate/internal/domain"
	"github.com/joao-fontenele/orderflow-aggregate/internal/telemetry"
)

// Store opens units of work and lists stored orders.
type Store interface {
	NewOrderRepository() domain.OrderRepository
	domain.OrderLister
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	store    Store
	producer Publisher
	logger   *slog.Logger
	metrics  *handlerMetrics
	now      func() time.Time
}

// NewHandler builds the order API. producer may be nil to disable event publishing.
func NewHandler(store Store, producer Publisher, logger *slog.Logger) (*Handler, error) {
	metrics, err := newHandlerMetrics()
	if err != nil {
		return nil, err
	}

	return &Handler{
		store:    store,
		producer: producer,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(h.HandleList))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(h.HandleCreate))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(h.HandleGet))
	mux.HandleFunc("POST /orders/{id}/items", telemetry.WithHTTPRoute(h.HandleAddItem))
	mux.HandleFunc("POST /orders/{id}/shipping-addresses", telemetry.WithHTTPRoute(h.HandleAddShippingAddress))
}

type itemRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
}

type addressRequest struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	Country string `json:"country"`
	ZipCode string `json:"zip_code"`
}

type createOrderRequest struct {
	CustomerID        string           `json:"customer_id"`
	Items             []itemRequest    `json:"items"`
	ShippingAddresses []addressRequest `json:"shipping_addresses"`
}

type itemResponse struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type addressResponse struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	Country string `json:"country"`
	ZipCode string `json:"zip_code"`
}

type orderResponse struct {
	ID                string            `json:"id"`
	CustomerID        string            `json:"customer_id"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	Currency          string            `json:"currency"`
	Items             []itemResponse    `json:"items"`
	ShippingAddresses []addressResponse `json:"shipping_addresses"`
}

type orderSummaryResponse struct {
	ID          string          `json:"id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	ItemCount   int             `json:"item_count"`
}

func newOrderResponse(o *domain.Order) orderResponse {
	items := o.Items()
	resp := orderResponse{
		ID:                o.ID().String(),
		CustomerID:        o.CustomerID().String(),
		TotalAmount:       o.TotalPrice().Amount(),
		Currency:          o.TotalPrice().Currency(),
		Items:             make([]itemResponse, 0, len(items)),
		ShippingAddresses: []addressResponse{},
	}

	for _, item := range items {
		resp.Items = append(resp.Items, itemResponse{
			ProductID: item.ProductID().String(),
			Quantity:  item.Quantity(),
			UnitPrice: item.UnitPrice().Amount(),
			Currency:  item.UnitPrice().Currency(),
			Subtotal:  item.Subtotal().Amount(),
		})
	}

	for _, a := range o.ShippingAddresses() {
		resp.ShippingAddresses = append(resp.ShippingAddresses, addressResponse{
			Street:  a.Street(),
			City:    a.City(),
			Country: a.Country(),
			ZipCode: a.ZipCode(),
		})
	}

	return resp
}

func addItem(order *domain.Order, req itemRequest) error {
	productID, err := domain.ParseProductID(req.ProductID)
	if err != nil {
		return err
	}

	unitPrice, err := domain.NewMoney(req.UnitPrice, req.Currency)
	if err != nil {
		return err
	}

	return order.AddItem(productID, req.Quantity, unitPrice)
}

func addShippingAddress(order *domain.Order, req addressRequest) (domain.Address, error) {
	address := domain.NewAddress(req.Street, req.City, req.Country, req.ZipCode)
	return address, order.AddShippingAddress(address)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	customerID, err := domain.ParseCustomerID(req.CustomerID)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}

	order := domain.NewOrder(domain.NewOrderID(), customerID)

	for _, item := range req.Items {
		if err := addItem(order, item); err != nil {
			h.writeDomainError(r.Context(), w, err)
			return
		}
	}

	for _, address := range req.ShippingAddresses {
		if _, err := addShippingAddress(order, address); err != nil {
			h.writeDomainError(r.Context(), w, err)
			return
		}
	}

	repo := h.store.NewOrderRepository()
	repo.Add(order)
	if err := repo.SaveChanges(r.Context()); err != nil {
		h.logger.Log(r.Context(), saveLogLevel(err), "failed to create order", "error", err, "order_id", order.ID().String())
		h.writeDomainError(r.Context(), w, err)
		return
	}

	h.metrics.ordersCreated.Add(r.Context(), 1)
	h.publish(r.Context(), order.ID(), domain.NewOrderCreatedEvent(order, h.now().UTC()))

	h.logger.Info("order created", "order_id", order.ID().String(), "customer_id", order.CustomerID().String(), "items", order.ItemCount())
	w.Header().Set("Location", "/orders/"+order.ID().String())
	h.writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	repo := h.store.NewOrderRepository()
	order, ok := h.loadOrder(w, r, repo)
	if !ok {
		return
	}

	h.logger.Info("order retrieved", "order_id", order.ID().String())
	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]orderSummaryResponse, 0, len(summaries))
	for _, s := range summaries {
		resp = append(resp, orderSummaryResponse{
			ID:          s.ID.String(),
			TotalAmount: s.TotalAmount,
			Currency:    s.Currency,
			ItemCount:   s.ItemCount,
		})
	}

	h.logger.Info("orders listed", "count", len(resp))
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	repo := h.store.NewOrderRepository()
	order, ok := h.loadOrder(w, r, repo)
	if !ok {
		return
	}

	if err := addItem(order, req); err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}

	if err := repo.SaveChanges(r.Context()); err != nil {
		h.logger.Log(r.Context(), saveLogLevel(err), "failed to save order item", "error", err, "order_id", order.ID().String())
		h.writeDomainError(r.Context(), w, err)
		return
	}

	h.metrics.itemsAdded.Add(r.Context(), 1)
	h.publish(r.Context(), order.ID(), domain.NewOrderItemAddedEvent(order, h.now().UTC()))

	h.logger.Info("order item added", "order_id", order.ID().String(), "total", order.TotalPrice().String())
	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) HandleAddShippingAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	repo := h.store.NewOrderRepository()
	order, ok := h.loadOrder(w, r, repo)
	if !ok {
		return
	}

	address, err := addShippingAddress(order, req)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return
	}

	if err := repo.SaveChanges(r.Context()); err != nil {
		h.logger.Log(r.Context(), saveLogLevel(err), "failed to save shipping address", "error", err, "order_id", order.ID().String())
		h.writeDomainError(r.Context(), w, err)
		return
	}

	h.metrics.addressesAdded.Add(r.Context(), 1)
	h.publish(r.Context(), order.ID(), domain.NewShippingAddressAddedEvent(order, address, h.now().UTC()))

	h.logger.Info("shipping address added", "order_id", order.ID().String())
	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}

// loadOrder resolves the {id} path value. It writes the response itself and
// returns false when the order cannot be served.
func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request, repo domain.OrderRepository) (*domain.Order, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return nil, false
	}

	id, err := domain.ParseOrderID(raw)
	if err != nil {
		h.writeDomainError(r.Context(), w, err)
		return nil, false
	}

	order, err := repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "id", raw)
		h.writeDomainError(r.Context(), w, err)
		return nil, false
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return nil, false
	}

	return order, true
}

func (h *Handler) publish(ctx context.Context, id domain.OrderID, event any) {
	if h.producer == nil {
		return
	}
	if err := h.producer.Publish(ctx, id.String(), event); err != nil {
		h.logger.Error("failed to publish order event", "error", err, "order_id", id.String())
	}
}

// writeDomainError maps the error taxonomy onto status codes. Persistence is
// checked first: a corrupt stored order also wraps the invariant it broke.
func (h *Handler) writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrConcurrencyConflict):
		h.metrics.reject(ctx, "conflict")
		h.writeError(w, http.StatusConflict, "order was modified concurrently, retry")
	case errors.Is(err, ErrConstraintViolation):
		h.metrics.reject(ctx, "constraint_violation")
		h.writeError(w, http.StatusBadRequest, "order exceeds storage limits: amounts allow at most 2 decimal places below 1e16, text fields are length-limited")
	case errors.Is(err, domain.ErrPersistence):
		h.metrics.reject(ctx, "persistence")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	case errors.Is(err, domain.ErrCurrencyMismatch):
		h.metrics.reject(ctx, "currency_mismatch")
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		h.metrics.reject(ctx, "invalid_argument")
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("unexpected error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// saveLogLevel keeps client-caused storage rejections out of the error log.
func saveLogLevel(err error) slog.Level {
	if errors.Is(err, ErrConstraintViolation) {
		return slog.LevelWarn
	}
	return slog.LevelError
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
