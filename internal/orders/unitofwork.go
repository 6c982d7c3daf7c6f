package orders

import (
	"github.com/joao-fontenele/orderflow-aggregate/internal/domain"
)

// trackedOrder remembers what of an aggregate is already stored. Items and
// addresses are append-only, so anything past the stored counts is pending.
type trackedOrder struct {
	order     *domain.Order
	isNew     bool
	version   int64
	items     int
	addresses int
}

// orderChange is the set of rows one SaveChanges call writes for one order.
type orderChange struct {
	tracked   *trackedOrder
	order     orderRecord
	items     []itemRecord
	addresses []addressRecord
}

// unitOfWork is the bookkeeping shared by the repository adapters. It is not
// safe for concurrent use, like the repositories that embed it.
type unitOfWork struct {
	tracked []*trackedOrder
}

func (u *unitOfWork) find(id domain.OrderID) *trackedOrder {
	for _, t := range u.tracked {
		if t.order.ID() == id {
			return t
		}
	}
	return nil
}

func (u *unitOfWork) registerNew(order *domain.Order) {
	if order == nil {
		return
	}
	for _, t := range u.tracked {
		if t.order == order {
			return
		}
	}
	u.tracked = append(u.tracked, &trackedOrder{order: order, isNew: true})
}

func (u *unitOfWork) registerLoaded(order *domain.Order, version int64) {
	u.tracked = append(u.tracked, &trackedOrder{
		order:     order,
		version:   version,
		items:     order.ItemCount(),
		addresses: order.ShippingAddressCount(),
	})
}

// pending maps every tracked order with unsaved state into records and runs
// the storage-level checks on them.
func (u *unitOfWork) pending() ([]orderChange, error) {
	var changes []orderChange

	for _, t := range u.tracked {
		if !t.isNew && t.order.ItemCount() == t.items && t.order.ShippingAddressCount() == t.addresses {
			continue
		}

		change := orderChange{
			tracked:   t,
			order:     toOrderRecord(t.order),
			items:     toItemRecords(t.order, t.items),
			addresses: toAddressRecords(t.order, t.addresses),
		}
		change.order.Version = t.version + 1

		if err := change.check(); err != nil {
			return nil, domain.NewPersistenceError("save order "+t.order.ID().String(), err)
		}
		changes = append(changes, change)
	}

	return changes, nil
}

// committed marks the changes as stored. Call it only after the commit succeeded.
func (u *unitOfWork) committed(changes []orderChange) {
	for _, c := range changes {
		c.tracked.isNew = false
		c.tracked.version = c.order.Version
		c.tracked.items += len(c.items)
		c.tracked.addresses += len(c.addresses)
	}
}

func (c orderChange) check() error {
	if err := c.order.check(); err != nil {
		return err
	}
	for _, item := range c.items {
		if err := item.check(); err != nil {
			return err
		}
	}
	for _, a := range c.addresses {
		if err := a.check(); err != nil {
			return err
		}
	}
	return nil
}
