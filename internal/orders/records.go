package orders

import (
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-aggregate/internal/domain"
)

// ErrConstraintViolation is the cause of a PersistenceError raised when a
// record breaks a storage-level check.
var ErrConstraintViolation = errors.New("constraint violation")

// ErrDuplicateOrder is the cause of a PersistenceError raised when a new
// order reuses an id that is already stored.
var ErrDuplicateOrder = errors.New("order already exists")

// maxAmount is the exclusive upper bound of a NUMERIC(18,2) column.
var maxAmount = decimal.New(1, 16)

const (
	maxCurrencyLen = 3
	maxStreetLen   = 200
	maxCityLen     = 100
	maxCountryLen  = 100
	maxZipCodeLen  = 20
)

// orderRecord is one row of the orders table. Money is flattened into an
// amount and a currency column.
type orderRecord struct {
	ID          uuid.UUID
	CustomerID  uuid.UUID
	TotalAmount decimal.Decimal
	Currency    string
	Version     int64
	CreatedAt   time.Time
}

// itemRecord is one row of order_items, keyed by (OrderID, Position).
type itemRecord struct {
	OrderID   uuid.UUID
	Position  int
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
	Currency  string
}

// addressRecord is one row of order_shipping_addresses, keyed by (OrderID, Position).
type addressRecord struct {
	OrderID  uuid.UUID
	Position int
	Street   string
	City     string
	Country  string
	ZipCode  string
}

func toOrderRecord(o *domain.Order) orderRecord {
	total := o.TotalPrice()
	return orderRecord{
		ID:          o.ID().UUID(),
		CustomerID:  o.CustomerID().UUID(),
		TotalAmount: total.Amount(),
		Currency:    total.Currency(),
	}
}

// toItemRecords maps the items from position `from` onwards.
func toItemRecords(o *domain.Order, from int) []itemRecord {
	items := o.Items()
	if from >= len(items) {
		return nil
	}

	records := make([]itemRecord, 0, len(items)-from)
	for pos := from; pos < len(items); pos++ {
		item := items[pos]
		records = append(records, itemRecord{
			OrderID:   o.ID().UUID(),
			Position:  pos,
			ProductID: item.ProductID().UUID(),
			Quantity:  item.Quantity(),
			UnitPrice: item.UnitPrice().Amount(),
			Currency:  item.UnitPrice().Currency(),
		})
	}
	return records
}

// toAddressRecords maps the shipping addresses from position `from` onwards.
func toAddressRecords(o *domain.Order, from int) []addressRecord {
	addresses := o.ShippingAddresses()
	if from >= len(addresses) {
		return nil
	}

	records := make([]addressRecord, 0, len(addresses)-from)
	for pos := from; pos < len(addresses); pos++ {
		a := addresses[pos]
		records = append(records, addressRecord{
			OrderID:  o.ID().UUID(),
			Position: pos,
			Street:   a.Street(),
			City:     a.City(),
			Country:  a.Country(),
			ZipCode:  a.ZipCode(),
		})
	}
	return records
}

// fromRecords rebuilds the aggregate through domain.Rehydrate and verifies the
// stored total against the recomputed one.
func fromRecords(rec orderRecord, items []itemRecord, addresses []addressRecord) (*domain.Order, error) {
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })
	sort.Slice(addresses, func(i, j int) bool { return addresses[i].Position < addresses[j].Position })

	snapshot := domain.Snapshot{
		ID:                domain.OrderIDFrom(rec.ID),
		CustomerID:        domain.CustomerIDFrom(rec.CustomerID),
		Items:             make([]domain.ItemSnapshot, 0, len(items)),
		ShippingAddresses: make([]domain.Address, 0, len(addresses)),
	}

	for _, item := range items {
		price, err := domain.NewMoney(item.UnitPrice, item.Currency)
		if err != nil {
			return nil, fmt.Errorf("item %d of order %s: %w", item.Position, rec.ID, err)
		}
		snapshot.Items = append(snapshot.Items, domain.ItemSnapshot{
			ProductID: domain.ProductIDFrom(item.ProductID),
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
	}

	for _, a := range addresses {
		snapshot.ShippingAddresses = append(snapshot.ShippingAddresses,
			domain.NewAddress(a.Street, a.City, a.Country, a.ZipCode))
	}

	order, err := domain.Rehydrate(snapshot)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", rec.ID, err)
	}

	stored, err := domain.NewMoney(rec.TotalAmount, rec.Currency)
	if err != nil {
		return nil, fmt.Errorf("total of order %s: %w", rec.ID, err)
	}
	if !stored.Equal(order.TotalPrice()) {
		return nil, fmt.Errorf("order %s: stored total %s does not match items total %s", rec.ID, stored, order.TotalPrice())
	}

	return order, nil
}

func checkAmount(column string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", ErrConstraintViolation, column)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: %s has more than 2 fractional digits", ErrConstraintViolation, column)
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return fmt.Errorf("%w: %s exceeds NUMERIC(18,2)", ErrConstraintViolation, column)
	}
	return nil
}

// checkLength counts characters, as VARCHAR(n) does.
func checkLength(column, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return fmt.Errorf("%w: %s longer than %d", ErrConstraintViolation, column, max)
	}
	return nil
}

func (r orderRecord) check() error {
	if err := checkAmount("total_amount", r.TotalAmount); err != nil {
		return err
	}
	return checkLength("currency", r.Currency, maxCurrencyLen)
}

func (r itemRecord) check() error {
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrConstraintViolation)
	}
	if err := checkAmount("unit_price", r.UnitPrice); err != nil {
		return err
	}
	return checkLength("currency", r.Currency, maxCurrencyLen)
}

func (r addressRecord) check() error {
	return errors.Join(
		checkLength("street", r.Street, maxStreetLen),
		checkLength("city", r.City, maxCityLen),
		checkLength("country", r.Country, maxCountryLen),
		checkLength("zip_code", r.ZipCode, maxZipCodeLen),
	)
}
