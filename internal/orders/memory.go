package orders

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/orderflow-aggregate/internal/domain"
)

type memoryRow struct {
	order     orderRecord
	items     []itemRecord
	addresses []addressRecord
	seq       int64
}

// MemoryStore keeps the same records the Postgres schema holds, in process.
// It is safe for concurrent use; each repository it hands out is not.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*memoryRow
	seq  int64
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[uuid.UUID]*memoryRow),
		now:  time.Now,
	}
}

func (s *MemoryStore) NewOrderRepository() domain.OrderRepository {
	return &MemoryRepository{store: s}
}

func (s *MemoryStore) List(ctx context.Context) ([]domain.OrderSummary, error) {
	s.mu.RLock()
	rows := make([]*memoryRow, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })

	summaries := make([]domain.OrderSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, domain.OrderSummary{
			ID:          domain.OrderIDFrom(row.order.ID),
			TotalAmount: row.order.TotalAmount,
			Currency:    row.order.Currency,
			ItemCount:   len(row.items),
		})
	}
	return summaries, nil
}

func (s *MemoryStore) load(id uuid.UUID) (memoryRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	if !ok {
		return memoryRow{}, false
	}
	return memoryRow{
		order:     row.order,
		items:     slices.Clone(row.items),
		addresses: slices.Clone(row.addresses),
		seq:       row.seq,
	}, true
}

// commit applies every change or none of them. Rows are replaced rather than
// mutated, so a reader holding an earlier row keeps a consistent view.
func (s *MemoryStore) commit(changes []orderChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uuid.UUID]bool, len(changes))
	for _, c := range changes {
		current, exists := s.rows[c.order.ID]
		switch {
		case seen[c.order.ID] || (c.tracked.isNew && exists):
			return domain.NewPersistenceError("insert order "+c.order.ID.String(), ErrDuplicateOrder)
		case !c.tracked.isNew && !exists:
			return domain.NewPersistenceError("update order "+c.order.ID.String(), domain.ErrConcurrencyConflict)
		case !c.tracked.isNew && current.order.Version != c.tracked.version:
			return domain.NewPersistenceError("update order "+c.order.ID.String(), domain.ErrConcurrencyConflict)
		}
		seen[c.order.ID] = true
	}

	for _, c := range changes {
		if c.tracked.isNew {
			s.seq++
			rec := c.order
			rec.CreatedAt = s.now().UTC()
			s.rows[rec.ID] = &memoryRow{
				order:     rec,
				items:     slices.Clone(c.items),
				addresses: slices.Clone(c.addresses),
				seq:       s.seq,
			}
			continue
		}

		current := s.rows[c.order.ID]
		rec := c.order
		rec.CreatedAt = current.order.CreatedAt
		s.rows[rec.ID] = &memoryRow{
			order:     rec,
			items:     append(slices.Clone(current.items), c.items...),
			addresses: append(slices.Clone(current.addresses), c.addresses...),
			seq:       current.seq,
		}
	}

	return nil
}

// MemoryRepository is a unit of work over a MemoryStore.
type MemoryRepository struct {
	store *MemoryStore
	uow   unitOfWork
}

func (r *MemoryRepository) GetByID(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	if t := r.uow.find(id); t != nil {
		return t.order, nil
	}

	row, ok := r.store.load(id.UUID())
	if !ok {
		return nil, nil
	}

	order, err := fromRecords(row.order, row.items, row.addresses)
	if err != nil {
		return nil, domain.NewPersistenceError("load order "+id.String(), err)
	}

	r.uow.registerLoaded(order, row.order.Version)
	return order, nil
}

func (r *MemoryRepository) Add(order *domain.Order) {
	r.uow.registerNew(order)
}

func (r *MemoryRepository) SaveChanges(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewPersistenceError("save changes", err)
	}

	changes, err := r.uow.pending()
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	if err := r.store.commit(changes); err != nil {
		return err
	}

	r.uow.committed(changes)
	return nil
}
