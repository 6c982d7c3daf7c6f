package domain

// OrderItem is a line of an Order. It exists only inside its Order and is
// created through Order.AddItem.
type OrderItem struct {
	productID ProductID
	quantity  int
	unitPrice Money
}

func (i OrderItem) ProductID() ProductID { return i.productID }
func (i OrderItem) Quantity() int        { return i.quantity }
func (i OrderItem) UnitPrice() Money     { return i.unitPrice }

// Subtotal is unitPrice * quantity in the unit price's currency.
func (i OrderItem) Subtotal() Money {
	return i.unitPrice.Multiply(i.quantity)
}

// Order is the aggregate root. Items and shipping addresses are append-only and
// only reachable through copies; totalPrice always equals the sum of subtotals.
type Order struct {
	id                OrderID
	customerID        CustomerID
	totalPrice        Money
	items             []OrderItem
	shippingAddresses []Address
}

func NewOrder(id OrderID, customerID CustomerID) *Order {
	return &Order{
		id:         id,
		customerID: customerID,
		totalPrice: Zero(),
	}
}

func (o *Order) ID() OrderID            { return o.id }
func (o *Order) CustomerID() CustomerID { return o.customerID }
func (o *Order) TotalPrice() Money      { return o.totalPrice }

func (o *Order) ItemCount() int {
	return len(o.items)
}

func (o *Order) ShippingAddressCount() int {
	return len(o.shippingAddresses)
}

func (o *Order) Items() []OrderItem {
	items := make([]OrderItem, len(o.items))
	copy(items, o.items)
	return items
}

func (o *Order) ShippingAddresses() []Address {
	addresses := make([]Address, len(o.shippingAddresses))
	copy(addresses, o.shippingAddresses)
	return addresses
}

// AddItem appends a line and recomputes the total over every item. On error
// the order is unchanged.
func (o *Order) AddItem(productID ProductID, quantity int, unitPrice Money) error {
	if quantity <= 0 {
		return invalidArgument("quantity", "quantity must be positive")
	}
	if unitPrice.currency == "" {
		return invalidArgument("unit_price", "unit price is required")
	}

	items := make([]OrderItem, len(o.items), len(o.items)+1)
	copy(items, o.items)
	items = append(items, OrderItem{
		productID: productID,
		quantity:  quantity,
		unitPrice: unitPrice,
	})

	total, err := sumSubtotals(items)
	if err != nil {
		return err
	}

	o.items = items
	o.totalPrice = total
	return nil
}

func (o *Order) AddShippingAddress(address Address) error {
	if address.IsZero() {
		return invalidArgument("shipping_address", "address must not be empty")
	}
	o.shippingAddresses = append(o.shippingAddresses, address)
	return nil
}

// sumSubtotals folds the subtotals with Money.Add starting from Zero, so any
// item priced outside the default currency fails the fold.
func sumSubtotals(items []OrderItem) (Money, error) {
	total := Zero()
	for _, item := range items {
		var err error
		total, err = total.Add(item.Subtotal())
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
