package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated         = "order.created"
	EventOrderItemAdded       = "order.item_added"
	EventShippingAddressAdded = "order.shipping_address_added"
)

type EventItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
}

type OrderCreatedEvent struct {
	Type        string          `json:"type"`
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	Items       []EventItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Timestamp   time.Time       `json:"timestamp"`
}

type OrderItemAddedEvent struct {
	Type        string          `json:"type"`
	OrderID     string          `json:"order_id"`
	Item        EventItem       `json:"item"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Timestamp   time.Time       `json:"timestamp"`
}

type ShippingAddressAddedEvent struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	Street    string    `json:"street"`
	City      string    `json:"city"`
	Country   string    `json:"country"`
	ZipCode   string    `json:"zip_code"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEventItem(item OrderItem) EventItem {
	return EventItem{
		ProductID: item.productID.String(),
		Quantity:  item.quantity,
		UnitPrice: item.unitPrice.amount,
		Currency:  item.unitPrice.currency,
	}
}

func NewOrderCreatedEvent(o *Order, at time.Time) OrderCreatedEvent {
	items := make([]EventItem, len(o.items))
	for i, item := range o.items {
		items[i] = NewEventItem(item)
	}

	return OrderCreatedEvent{
		Type:        EventOrderCreated,
		OrderID:     o.id.String(),
		CustomerID:  o.customerID.String(),
		Items:       items,
		TotalAmount: o.totalPrice.amount,
		Currency:    o.totalPrice.currency,
		Timestamp:   at,
	}
}

// NewOrderItemAddedEvent describes the most recently added item. It must be
// called after a successful AddItem.
func NewOrderItemAddedEvent(o *Order, at time.Time) OrderItemAddedEvent {
	var item EventItem
	if n := len(o.items); n > 0 {
		item = NewEventItem(o.items[n-1])
	}

	return OrderItemAddedEvent{
		Type:        EventOrderItemAdded,
		OrderID:     o.id.String(),
		Item:        item,
		TotalAmount: o.totalPrice.amount,
		Currency:    o.totalPrice.currency,
		Timestamp:   at,
	}
}

func NewShippingAddressAddedEvent(o *Order, address Address, at time.Time) ShippingAddressAddedEvent {
	return ShippingAddressAddedEvent{
		Type:      EventShippingAddressAdded,
		OrderID:   o.id.String(),
		Street:    address.street,
		City:      address.city,
		Country:   address.country,
		ZipCode:   address.zipCode,
		Timestamp: at,
	}
}

func (e OrderCreatedEvent) EventType() string         { return e.Type }
func (e OrderItemAddedEvent) EventType() string       { return e.Type }
func (e ShippingAddressAddedEvent) EventType() string { return e.Type }
