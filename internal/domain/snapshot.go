package domain

// Snapshot is the plain-data form of an Order used by storage adapters.
type Snapshot struct {
	ID                OrderID
	CustomerID        CustomerID
	Items             []ItemSnapshot
	ShippingAddresses []Address
}

type ItemSnapshot struct {
	ProductID ProductID
	Quantity  int
	UnitPrice Money
}

func (o *Order) Snapshot() Snapshot {
	items := make([]ItemSnapshot, len(o.items))
	for i, item := range o.items {
		items[i] = ItemSnapshot{
			ProductID: item.productID,
			Quantity:  item.quantity,
			UnitPrice: item.unitPrice,
		}
	}

	return Snapshot{
		ID:                o.id,
		CustomerID:        o.customerID,
		Items:             items,
		ShippingAddresses: o.ShippingAddresses(),
	}
}

// Rehydrate rebuilds an Order by replaying the snapshot through the aggregate's
// own mutations, so a loaded order satisfies the same invariants as a new one.
// The total is always recomputed, never taken from the snapshot.
func Rehydrate(s Snapshot) (*Order, error) {
	order := NewOrder(s.ID, s.CustomerID)

	for _, item := range s.Items {
		if err := order.AddItem(item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			return nil, err
		}
	}

	for _, address := range s.ShippingAddresses {
		if err := order.AddShippingAddress(address); err != nil {
			return nil, err
		}
	}

	return order, nil
}
