package domain

import "github.com/google/uuid"

// OrderID identifies an Order. The zero value is not a valid identity.
type OrderID struct {
	value uuid.UUID
}

func NewOrderID() OrderID {
	return OrderID{value: uuid.New()}
}

// OrderIDFrom wraps a raw UUID. No format or version check is applied.
func OrderIDFrom(v uuid.UUID) OrderID {
	return OrderID{value: v}
}

func ParseOrderID(s string) (OrderID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return OrderID{}, invalidArgument("order_id", "malformed order id")
	}
	return OrderID{value: v}, nil
}

func (id OrderID) UUID() uuid.UUID { return id.value }
func (id OrderID) String() string  { return id.value.String() }
func (id OrderID) IsZero() bool    { return id.value == uuid.Nil }

// CustomerID references a customer owned by another system.
type CustomerID struct {
	value uuid.UUID
}

func NewCustomerID() CustomerID {
	return CustomerID{value: uuid.New()}
}

func CustomerIDFrom(v uuid.UUID) CustomerID {
	return CustomerID{value: v}
}

func ParseCustomerID(s string) (CustomerID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return CustomerID{}, invalidArgument("customer_id", "malformed customer id")
	}
	return CustomerID{value: v}, nil
}

func (id CustomerID) UUID() uuid.UUID { return id.value }
func (id CustomerID) String() string  { return id.value.String() }
func (id CustomerID) IsZero() bool    { return id.value == uuid.Nil }

// ProductID references a catalogue product owned by another system.
type ProductID struct {
	value uuid.UUID
}

func NewProductID() ProductID {
	return ProductID{value: uuid.New()}
}

func ProductIDFrom(v uuid.UUID) ProductID {
	return ProductID{value: v}
}

func ParseProductID(s string) (ProductID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return ProductID{}, invalidArgument("product_id", "malformed product id")
	}
	return ProductID{value: v}, nil
}

func (id ProductID) UUID() uuid.UUID { return id.value }
func (id ProductID) String() string  { return id.value.String() }
func (id ProductID) IsZero() bool    { return id.value == uuid.Nil }
