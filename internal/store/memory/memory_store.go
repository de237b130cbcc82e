// Package memory is an in-process implementation of store.Store.
//
// Transactions are fully serialized: BeginTx waits for exclusive access and
// works on a private copy of the data that replaces the shared state on
// Commit. This gives the same all-or-nothing and row-lock behaviour the
// Postgres store provides, which is what the core relies on.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matheusmosca/bookstore-inventory/internal/domain"
	"github.com/matheusmosca/bookstore-inventory/internal/store"
	"github.com/shopspring/decimal"
)

// FaultFunc is consulted before every mutating operation. A non-nil return
// aborts the operation with that error.
type FaultFunc func(op, key string) error

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithConfirmTrigger emulates a database trigger that adds quantity_ordered
// to the book stock whenever an order is written as Confirmed. times > 1
// emulates a misconfigured environment where the trigger is applied twice.
func WithConfirmTrigger(times int) Option {
	return func(s *MemoryStore) {
		s.triggerTimes = times
	}
}

// WithFault installs a fault injection hook.
func WithFault(fn FaultFunc) Option {
	return func(s *MemoryStore) {
		s.fault = fn
	}
}

// MemoryStore implements store.Store with in-memory storage
type MemoryStore struct {
	sem          chan struct{}
	mu           sync.Mutex
	data         *state
	triggerTimes int
	fault        FaultFunc
	now          func() time.Time
}

type state struct {
	books     map[string]domain.Book
	orders    map[int64]domain.ReplenishmentOrder
	orderSeq  int64
	carts     map[int64]int64
	cartSeq   int64
	cartItems map[int64][]domain.CartItem
	sales     map[int64]domain.Sale
	saleSeq   int64
	movements []domain.StockMovement
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sem: make(chan struct{}, 1),
		data: &state{
			books:     make(map[string]domain.Book),
			orders:    make(map[int64]domain.ReplenishmentOrder),
			carts:     make(map[int64]int64),
			cartItems: make(map[int64][]domain.CartItem),
			sales:     make(map[int64]domain.Sale),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ store.Store = (*MemoryStore)(nil)
	_ store.Tx    = (*memoryTx)(nil)
)

// BeginTx waits for exclusive access. A cancelled context while waiting is
// reported as a transient failure, the same way a lock timeout would be.
func (s *MemoryStore) BeginTx(ctx context.Context) (store.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientStore, ctx.Err())
	}

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	return &memoryTx{store: s, data: snapshot}, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// SetFault replaces the fault injection hook.
func (s *MemoryStore) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

func (s *MemoryStore) checkFault(op, key string) error {
	s.mu.Lock()
	fn := s.fault
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(op, key)
}

func (st *state) clone() *state {
	c := &state{
		books:     make(map[string]domain.Book, len(st.books)),
		orders:    make(map[int64]domain.ReplenishmentOrder, len(st.orders)),
		orderSeq:  st.orderSeq,
		carts:     make(map[int64]int64, len(st.carts)),
		cartSeq:   st.cartSeq,
		cartItems: make(map[int64][]domain.CartItem, len(st.cartItems)),
		sales:     make(map[int64]domain.Sale, len(st.sales)),
		saleSeq:   st.saleSeq,
		movements: append([]domain.StockMovement(nil), st.movements...),
	}
	for k, v := range st.books {
		c.books[k] = v
	}
	for k, v := range st.orders {
		c.orders[k] = v
	}
	for k, v := range st.carts {
		c.carts[k] = v
	}
	for k, v := range st.cartItems {
		c.cartItems[k] = append([]domain.CartItem(nil), v...)
	}
	for k, v := range st.sales {
		c.sales[k] = v
	}
	return c
}

type memoryTx struct {
	store *MemoryStore
	data  *state
	done  bool
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.store.mu.Lock()
	t.store.data = t.data
	t.store.mu.Unlock()
	<-t.store.sem
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	<-t.store.sem
	return nil
}

// Books

func (t *memoryTx) CreateBook(ctx context.Context, book *domain.Book) error {
	if err := t.store.checkFault("CreateBook", book.ISBN); err != nil {
		return err
	}
	if _, exists := t.data.books[book.ISBN]; exists {
		return fmt.Errorf("book %s: %w", book.ISBN, domain.ErrAlreadyExists)
	}
	if book.StockQty < 0 || book.ThresholdQty < 0 {
		return fmt.Errorf("book %s: %w", book.ISBN, domain.ErrInvalidQuantity)
	}
	now := t.store.now()
	book.CreatedAt, book.UpdatedAt = now, now
	t.data.books[book.ISBN] = *book
	return nil
}

func (t *memoryTx) GetBook(ctx context.Context, isbn string) (*domain.Book, error) {
	book, ok := t.data.books[isbn]
	if !ok {
		return nil, domain.NewNotFound("book", isbn)
	}
	return &book, nil
}

func (t *memoryTx) GetBookForUpdate(ctx context.Context, isbn string) (*domain.Book, error) {
	return t.GetBook(ctx, isbn)
}

func (t *memoryTx) LockBooks(ctx context.Context, isbns []string) (map[string]*domain.Book, error) {
	sorted := append([]string(nil), isbns...)
	sort.Strings(sorted)

	books := make(map[string]*domain.Book, len(sorted))
	for _, isbn := range sorted {
		book, err := t.GetBook(ctx, isbn)
		if err != nil {
			return nil, err
		}
		books[isbn] = book
	}
	return books, nil
}

func (t *memoryTx) SetStock(ctx context.Context, isbn string, qty int) error {
	if err := t.store.checkFault("SetStock", isbn); err != nil {
		return err
	}
	book, ok := t.data.books[isbn]
	if !ok {
		return domain.NewNotFound("book", isbn)
	}
	if qty < 0 {
		return fmt.Errorf("book %s stock %d: %w", isbn, qty, domain.ErrInvalidQuantity)
	}
	book.StockQty = qty
	book.UpdatedAt = t.store.now()
	t.data.books[isbn] = book
	return nil
}

func (t *memoryTx) UpdatePrice(ctx context.Context, isbn string, price decimal.Decimal) error {
	book, ok := t.data.books[isbn]
	if !ok {
		return domain.NewNotFound("book", isbn)
	}
	book.Price = price
	book.UpdatedAt = t.store.now()
	t.data.books[isbn] = book
	return nil
}

func (t *memoryTx) InsertMovement(ctx context.Context, m *domain.StockMovement) error {
	if err := t.store.checkFault("InsertMovement", m.ISBN); err != nil {
		return err
	}
	t.data.movements = append(t.data.movements, *m)
	return nil
}

func (t *memoryTx) ListMovements(ctx context.Context, isbn string) ([]domain.StockMovement, error) {
	var out []domain.StockMovement
	for _, m := range t.data.movements {
		if m.ISBN == isbn {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *memoryTx) LowStockBooks(ctx context.Context) ([]domain.LowStockBook, error) {
	pending := make(map[string]bool)
	for _, o := range t.data.orders {
		if o.Status == domain.OrderStatusPending {
			pending[o.ISBN] = true
		}
	}

	var out []domain.LowStockBook
	for _, b := range t.data.books {
		if b.StockQty >= b.ThresholdQty || b.ThresholdQty <= 0 || b.PublisherID == nil || pending[b.ISBN] {
			continue
		}
		out = append(out, domain.LowStockBook{
			ISBN:         b.ISBN,
			Title:        b.Title,
			StockQty:     b.StockQty,
			ThresholdQty: b.ThresholdQty,
			PublisherID:  *b.PublisherID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISBN < out[j].ISBN })
	return out, nil
}

// Replenishment orders

func (t *memoryTx) InsertOrder(ctx context.Context, order *domain.ReplenishmentOrder) error {
	if err := t.store.checkFault("InsertOrder", order.ISBN); err != nil {
		return err
	}
	if _, ok := t.data.books[order.ISBN]; !ok {
		return domain.NewNotFound("book", order.ISBN)
	}
	if order.Status == domain.OrderStatusPending {
		if pending, _ := t.HasPendingOrder(ctx, order.ISBN); pending {
			return fmt.Errorf("isbn %s: %w", order.ISBN, domain.ErrPendingOrderExists)
		}
	}
	t.data.orderSeq++
	order.ID = t.data.orderSeq
	t.data.orders[order.ID] = *order
	return nil
}

func (t *memoryTx) GetOrder(ctx context.Context, orderID int64) (*domain.ReplenishmentOrder, error) {
	order, ok := t.data.orders[orderID]
	if !ok {
		return nil, domain.NewNotFound("replenishment order", fmt.Sprint(orderID))
	}
	order.BookTitle = t.data.books[order.ISBN].Title
	return &order, nil
}

func (t *memoryTx) GetOrderForUpdate(ctx context.Context, orderID int64) (*domain.ReplenishmentOrder, error) {
	return t.GetOrder(ctx, orderID)
}

func (t *memoryTx) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	if err := t.store.checkFault("UpdateOrderStatus", fmt.Sprint(orderID)); err != nil {
		return err
	}
	order, ok := t.data.orders[orderID]
	if !ok {
		return domain.NewNotFound("replenishment order", fmt.Sprint(orderID))
	}
	previous := order.Status
	order.Status = status
	t.data.orders[orderID] = order

	// legacy trigger emulation
	if t.store.triggerTimes > 0 && status == domain.OrderStatusConfirmed && previous != domain.OrderStatusConfirmed {
		if book, ok := t.data.books[order.ISBN]; ok {
			book.StockQty += order.QuantityOrdered * t.store.triggerTimes
			t.data.books[order.ISBN] = book
		}
	}
	return nil
}

func (t *memoryTx) HasPendingOrder(ctx context.Context, isbn string) (bool, error) {
	for _, o := range t.data.orders {
		if o.ISBN == isbn && o.Status == domain.OrderStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) CountOrders(ctx context.Context, isbn string) (int, error) {
	n := 0
	for _, o := range t.data.orders {
		if o.ISBN == isbn {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) ListOrders(ctx context.Context) ([]domain.ReplenishmentOrder, error) {
	out := make([]domain.ReplenishmentOrder, 0, len(t.data.orders))
	for _, o := range t.data.orders {
		o.BookTitle = t.data.books[o.ISBN].Title
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OrderDate.Equal(out[j].OrderDate) {
			return out[i].OrderDate.After(out[j].OrderDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Carts

func (t *memoryTx) GetOrCreateCart(ctx context.Context, userID int64) (int64, error) {
	if id, ok := t.data.carts[userID]; ok {
		return id, nil
	}
	t.data.cartSeq++
	t.data.carts[userID] = t.data.cartSeq
	return t.data.cartSeq, nil
}

func (t *memoryTx) ListCartItems(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	return append([]domain.CartItem(nil), t.data.cartItems[userID]...), nil
}

func (t *memoryTx) AddCartItem(ctx context.Context, userID int64, isbn string, qty int) error {
	if _, ok := t.data.books[isbn]; !ok {
		return domain.NewNotFound("book", isbn)
	}
	cartID, _ := t.GetOrCreateCart(ctx, userID)
	items := t.data.cartItems[userID]
	for i := range items {
		if items[i].ISBN == isbn {
			items[i].Quantity += qty
			return nil
		}
	}
	t.data.cartItems[userID] = append(items, domain.CartItem{
		CartID:   cartID,
		ISBN:     isbn,
		Quantity: qty,
		AddedAt:  t.store.now(),
	})
	return nil
}

func (t *memoryTx) SetCartItemQuantity(ctx context.Context, userID int64, isbn string, qty int) error {
	items := t.data.cartItems[userID]
	for i := range items {
		if items[i].ISBN == isbn {
			items[i].Quantity = qty
			return nil
		}
	}
	return domain.NewNotFound("cart item", isbn)
}

func (t *memoryTx) DeleteCartItem(ctx context.Context, userID int64, isbn string) error {
	items := t.data.cartItems[userID]
	for i := range items {
		if items[i].ISBN == isbn {
			t.data.cartItems[userID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return domain.NewNotFound("cart item", isbn)
}

func (t *memoryTx) ClearCart(ctx context.Context, userID int64) error {
	if err := t.store.checkFault("ClearCart", fmt.Sprint(userID)); err != nil {
		return err
	}
	delete(t.data.cartItems, userID)
	return nil
}

// Sales

func (t *memoryTx) InsertSale(ctx context.Context, sale *domain.Sale) error {
	if err := t.store.checkFault("InsertSale", fmt.Sprint(sale.CustomerID)); err != nil {
		return err
	}
	t.data.saleSeq++
	sale.OrderNo = t.data.saleSeq
	sale.OrderDate = t.store.now()
	stored := *sale
	stored.Items = append([]domain.SaleLine(nil), sale.Items...)
	t.data.sales[sale.OrderNo] = stored
	return nil
}

func (t *memoryTx) GetSale(ctx context.Context, orderNo int64) (*domain.Sale, error) {
	sale, ok := t.data.sales[orderNo]
	if !ok {
		return nil, domain.NewNotFound("sale", fmt.Sprint(orderNo))
	}
	sale.Items = append([]domain.SaleLine(nil), sale.Items...)
	return &sale, nil
}

func (t *memoryTx) ListSalesByCustomer(ctx context.Context, customerID int64) ([]domain.Sale, error) {
	var out []domain.Sale
	for _, s := range t.data.sales {
		if s.CustomerID == customerID {
			s.Items = append([]domain.SaleLine(nil), s.Items...)
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderNo > out[j].OrderNo })
	return out, nil
}
