package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/joao-fontenele/orderflow-aggregate/internal/domain"
)

// SQLSTATE codes the repository classifies.
const (
	uniqueViolation      = "23505"
	checkViolation       = "23514"
	serializationFailure = "40001"
)

// PostgresStore hands out repositories over one connection pool.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) NewOrderRepository() domain.OrderRepository {
	return NewOrderRepository(s.db)
}

func (s *PostgresStore) List(ctx context.Context) ([]domain.OrderSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.total_amount, o.currency, COUNT(i.position)
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id
		GROUP BY o.id
		ORDER BY o.created_at DESC
	`)
	if err != nil {
		return nil, persistenceError("list orders", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []domain.OrderSummary{}
	for rows.Next() {
		var rec orderRecord
		var count int
		if err := rows.Scan(&rec.ID, &rec.TotalAmount, &rec.Currency, &count); err != nil {
			return nil, persistenceError("list orders", err)
		}
		summaries = append(summaries, domain.OrderSummary{
			ID:          domain.OrderIDFrom(rec.ID),
			TotalAmount: rec.TotalAmount,
			Currency:    rec.Currency,
			ItemCount:   count,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError("list orders", err)
	}

	return summaries, nil
}

// OrderRepository is a unit of work over the orders schema. Create one per
// request; it is not safe for concurrent use.
type OrderRepository struct {
	db  *sql.DB
	uow unitOfWork
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) GetByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	if t := r.uow.find(id); t != nil {
		return t.order, nil
	}

	var rec orderRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, total_amount, currency, version, created_at
		FROM orders
		WHERE id = $1
	`, id.UUID()).Scan(&rec.ID, &rec.CustomerID, &rec.TotalAmount, &rec.Currency, &rec.Version, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceError("load order "+id.String(), err)
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, persistenceError("load items of order "+id.String(), err)
	}

	addresses, err := r.loadAddresses(ctx, id)
	if err != nil {
		return nil, persistenceError("load shipping addresses of order "+id.String(), err)
	}

	order, err := fromRecords(rec, items, addresses)
	if err != nil {
		return nil, domain.NewPersistenceError("load order "+id.String(), err)
	}

	r.uow.registerLoaded(order, rec.Version)
	return order, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, id domain.OrderID) ([]itemRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, position, product_id, quantity, unit_price, currency
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id.UUID())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []itemRecord
	for rows.Next() {
		var item itemRecord
		if err := rows.Scan(&item.OrderID, &item.Position, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Currency); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (r *OrderRepository) loadAddresses(ctx context.Context, id domain.OrderID) ([]addressRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, position, street, city, country, zip_code
		FROM order_shipping_addresses
		WHERE order_id = $1
		ORDER BY position
	`, id.UUID())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var addresses []addressRecord
	for rows.Next() {
		var a addressRecord
		if err := rows.Scan(&a.OrderID, &a.Position, &a.Street, &a.City, &a.Country, &a.ZipCode); err != nil {
			return nil, err
		}
		addresses = append(addresses, a)
	}

	return addresses, rows.Err()
}

func (r *OrderRepository) Add(order *domain.Order) {
	r.uow.registerNew(order)
}

// SaveChanges writes every pending change in one transaction. Updates are
// guarded by the version read at load time; a stale version fails the whole
// call with ErrConcurrencyConflict.
func (r *OrderRepository) SaveChanges(ctx context.Context) error {
	changes, err := r.uow.pending()
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range changes {
		if err := writeChange(ctx, tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("commit", err)
	}

	r.uow.committed(changes)
	return nil
}

func writeChange(ctx context.Context, tx *sql.Tx, c orderChange) error {
	op := "save order " + c.order.ID.String()

	if c.tracked.isNew {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, customer_id, total_amount, currency, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		`, c.order.ID, c.order.CustomerID, c.order.TotalAmount, c.order.Currency, c.order.Version)
		if err != nil {
			return persistenceError(op, err)
		}
	} else {
		result, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET total_amount = $2, currency = $3, version = $4, updated_at = NOW()
			WHERE id = $1 AND version = $5
		`, c.order.ID, c.order.TotalAmount, c.order.Currency, c.order.Version, c.tracked.version)
		if err != nil {
			return persistenceError(op, err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return persistenceError(op, err)
		}
		if rowsAffected == 0 {
			return domain.NewPersistenceError(op, domain.ErrConcurrencyConflict)
		}
	}

	for _, item := range c.items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, quantity, unit_price, currency)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.OrderID, item.Position, item.ProductID, item.Quantity, item.UnitPrice, item.Currency)
		if err != nil {
			return persistenceError(op, err)
		}
	}

	for _, a := range c.addresses {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_shipping_addresses (order_id, position, street, city, country, zip_code)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, a.OrderID, a.Position, a.Street, a.City, a.Country, a.ZipCode)
		if err != nil {
			return persistenceError(op, err)
		}
	}

	return nil
}

// persistenceError wraps a driver error, tagging the SQLSTATEs that have a
// package-level meaning. The driver error stays in the chain.
func persistenceError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			err = errors.Join(ErrDuplicateOrder, err)
		case checkViolation:
			err = errors.Join(ErrConstraintViolation, err)
		case serializationFailure:
			err = errors.Join(domain.ErrConcurrencyConflict, err)
		}
	}
	return domain.NewPersistenceError(op, err)
}
