package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/example/ec-shop/internal/apperr"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/infrastructure/store"
)

// MockStore is an in-memory implementation of store.Store for testing.
//
// Transactions are real: InTx works on a copy of the data and swaps it in
// only when fn returns nil, so a failure injected halfway through a
// transaction leaves no trace. Transactions are serialized. Do not call
// MockStore methods from inside an InTx callback; use the Queries passed to
// it instead.
type MockStore struct {
	mu       sync.Mutex
	data     *data
	failures map[string]error

	// Calls records every method invoked, in order. Methods called inside a
	// transaction are recorded even when the transaction rolls back.
	Calls []string
}

var _ store.Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore
func NewMockStore() *MockStore {
	return &MockStore{
		data:     newData(),
		failures: make(map[string]error),
	}
}

// FailOn makes every later call of method return err, marked as a
// persistence failure. Use "Commit" to fail at the end of InTx.
func (m *MockStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[method] = err
}

// ClearFailures removes all injected failures
func (m *MockStore) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]error)
}

// CallCount returns how often method was invoked
func (m *MockStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == method {
			n++
		}
	}
	return n
}

// Events returns every outbox event, published or not, oldest first.
func (m *MockStore) Events() []store.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]store.Event, len(m.data.events))
	for i, row := range m.data.events {
		events[i] = row.event
	}
	return events
}

// record notes a call and returns the injected failure, if any. The caller
// holds m.mu.
func (m *MockStore) record(method string) error {
	m.Calls = append(m.Calls, method)
	if err, ok := m.failures[method]; ok {
		return apperr.Persistence(err, method)
	}
	return nil
}

func (m *MockStore) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.record("InTx"); err != nil {
		return err
	}
	tx := &queries{m: m, d: m.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := m.record("Commit"); err != nil {
		return err
	}
	m.data = tx.d
	return nil
}

func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("Ping")
}

// do locks the store and returns queries over the committed data.
func (m *MockStore) do() (*queries, func()) {
	m.mu.Lock()
	return &queries{m: m, d: m.data}, m.mu.Unlock
}

func (m *MockStore) CreateProduct(ctx context.Context, p *product.Product) error {
	q, unlock := m.do()
	defer unlock()
	return q.CreateProduct(ctx, p)
}

func (m *MockStore) GetProduct(ctx context.Context, id string) (*product.Product, bool, error) {
	q, unlock := m.do()
	defer unlock()
	return q.GetProduct(ctx, id)
}

func (m *MockStore) ListProducts(ctx context.Context) ([]product.Product, error) {
	q, unlock := m.do()
	defer unlock()
	return q.ListProducts(ctx)
}

func (m *MockStore) CreateUser(ctx context.Context, u *user.User) error {
	q, unlock := m.do()
	defer unlock()
	return q.CreateUser(ctx, u)
}

func (m *MockStore) GetUser(ctx context.Context, id string) (*user.User, bool, error) {
	q, unlock := m.do()
	defer unlock()
	return q.GetUser(ctx, id)
}

func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	q, unlock := m.do()
	defer unlock()
	return q.GetUserByEmail(ctx, email)
}

func (m *MockStore) GetCartByUser(ctx context.Context, userID string) (*cart.Cart, bool, error) {
	q, unlock := m.do()
	defer unlock()
	return q.GetCartByUser(ctx, userID)
}

func (m *MockStore) GetOrCreateCart(ctx context.Context, userID string, now time.Time) (*cart.Cart, error) {
	q, unlock := m.do()
	defer unlock()
	return q.GetOrCreateCart(ctx, userID, now)
}

func (m *MockStore) LockCart(ctx context.Context, cartID string) error {
	q, unlock := m.do()
	defer unlock()
	return q.LockCart(ctx, cartID)
}

func (m *MockStore) GetCartItem(ctx context.Context, cartID, productID string) (*cart.Item, bool, error) {
	q, unlock := m.do()
	defer unlock()
	return q.GetCartItem(ctx, cartID, productID)
}

func (m *MockStore) AddCartItem(ctx context.Context, cartID, productID string, delta int, now time.Time) (int, error) {
	q, unlock := m.do()
	defer unlock()
	return q.AddCartItem(ctx, cartID, productID, delta, now)
}

func (m *MockStore) SetCartItem(ctx context.Context, cartID, productID string, quantity int, now time.Time) error {
	q, unlock := m.do()
	defer unlock()
	return q.SetCartItem(ctx, cartID, productID, quantity, now)
}

func (m *MockStore) DeleteCartItem(ctx context.Context, cartID, productID string) (bool, error) {
	q, unlock := m.do()
	defer unlock()
	return q.DeleteCartItem(ctx, cartID, productID)
}

func (m *MockStore) ListCartLines(ctx context.Context, cartID string) ([]cart.Line, error) {
	q, unlock := m.do()
	defer unlock()
	return q.ListCartLines(ctx, cartID)
}

func (m *MockStore) LockCartLines(ctx context.Context, cartID string) ([]cart.Line, error) {
	q, unlock := m.do()
	defer unlock()
	return q.LockCartLines(ctx, cartID)
}

func (m *MockStore) ClearCart(ctx context.Context, cartID string) (int, error) {
	q, unlock := m.do()
	defer unlock()
	return q.ClearCart(ctx, cartID)
}

func (m *MockStore) CreateOrder(ctx context.Context, o *order.Order) error {
	q, unlock := m.do()
	defer unlock()
	return q.CreateOrder(ctx, o)
}

func (m *MockStore) InsertOrderItem(ctx context.Context, item order.Item) error {
	q, unlock := m.do()
	defer unlock()
	return q.InsertOrderItem(ctx, item)
}

func (m *MockStore) GetOrder(ctx context.Context, id string) (*order.Order, bool, error) {
	q, unlock := m.do()
	defer unlock()
	return q.GetOrder(ctx, id)
}

func (m *MockStore) ListOrdersByUser(ctx context.Context, userID string) ([]order.Order, error) {
	q, unlock := m.do()
	defer unlock()
	return q.ListOrdersByUser(ctx, userID)
}

func (m *MockStore) AppendEvent(ctx context.Context, e store.Event) error {
	q, unlock := m.do()
	defer unlock()
	return q.AppendEvent(ctx, e)
}

func (m *MockStore) ListPendingEvents(ctx context.Context, limit int) ([]store.Event, error) {
	q, unlock := m.do()
	defer unlock()
	return q.ListPendingEvents(ctx, limit)
}

func (m *MockStore) MarkEventsPublished(ctx context.Context, ids []string, at time.Time) error {
	q, unlock := m.do()
	defer unlock()
	return q.MarkEventsPublished(ctx, ids, at)
}

// data is one consistent snapshot of every table.
type data struct {
	products   map[string]product.Product
	users      map[string]user.User
	carts      map[string]cart.Cart
	cartByUser map[string]string
	cartItems  map[string]map[string]cart.Item // cartID -> productID -> item
	orders     map[string]order.Order
	events     []eventRow
}

type eventRow struct {
	event       store.Event
	publishedAt *time.Time
}

func newData() *data {
	return &data{
		products:   make(map[string]product.Product),
		users:      make(map[string]user.User),
		carts:      make(map[string]cart.Cart),
		cartByUser: make(map[string]string),
		cartItems:  make(map[string]map[string]cart.Item),
		orders:     make(map[string]order.Order),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.carts {
		c.carts[k] = v
	}
	for k, v := range d.cartByUser {
		c.cartByUser[k] = v
	}
	for cartID, items := range d.cartItems {
		copied := make(map[string]cart.Item, len(items))
		for k, v := range items {
			copied[k] = v
		}
		c.cartItems[cartID] = copied
	}
	for k, v := range d.orders {
		v.Items = append([]order.Item(nil), v.Items...)
		c.orders[k] = v
	}
	c.events = append([]eventRow(nil), d.events...)
	return c
}

// queries operates on one snapshot. The MockStore mutex is held by the
// caller for the whole lifetime of a queries value.
type queries struct {
	m *MockStore
	d *data
}

func (q *queries) CreateProduct(_ context.Context, p *product.Product) error {
	if err := q.m.record("CreateProduct"); err != nil {
		return err
	}
	if _, ok := q.d.products[p.ID]; ok {
		return apperr.Persistence(errors.Newf("duplicate product id %s", p.ID), "CreateProduct")
	}
	q.d.products[p.ID] = *p
	return nil
}

func (q *queries) GetProduct(_ context.Context, id string) (*product.Product, bool, error) {
	if err := q.m.record("GetProduct"); err != nil {
		return nil, false, err
	}
	p, ok := q.d.products[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (q *queries) ListProducts(_ context.Context) ([]product.Product, error) {
	if err := q.m.record("ListProducts"); err != nil {
		return nil, err
	}
	products := make([]product.Product, 0, len(q.d.products))
	for _, p := range q.d.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

func (q *queries) CreateUser(_ context.Context, u *user.User) error {
	if err := q.m.record("CreateUser"); err != nil {
		return err
	}
	for _, existing := range q.d.users {
		if existing.Email == u.Email {
			return apperr.Conflict("duplicate email")
		}
	}
	q.d.users[u.ID] = *u
	return nil
}

func (q *queries) GetUser(_ context.Context, id string) (*user.User, bool, error) {
	if err := q.m.record("GetUser"); err != nil {
		return nil, false, err
	}
	u, ok := q.d.users[id]
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

func (q *queries) GetUserByEmail(_ context.Context, email string) (*user.User, bool, error) {
	if err := q.m.record("GetUserByEmail"); err != nil {
		return nil, false, err
	}
	for _, u := range q.d.users {
		if u.Email == email {
			return &u, true, nil
		}
	}
	return nil, false, nil
}

func (q *queries) GetCartByUser(_ context.Context, userID string) (*cart.Cart, bool, error) {
	if err := q.m.record("GetCartByUser"); err != nil {
		return nil, false, err
	}
	id, ok := q.d.cartByUser[userID]
	if !ok {
		return nil, false, nil
	}
	c := q.d.carts[id]
	return &c, true, nil
}

func (q *queries) GetOrCreateCart(_ context.Context, userID string, now time.Time) (*cart.Cart, error) {
	if err := q.m.record("GetOrCreateCart"); err != nil {
		return nil, err
	}
	if id, ok := q.d.cartByUser[userID]; ok {
		c := q.d.carts[id]
		return &c, nil
	}
	if _, ok := q.d.users[userID]; !ok {
		return nil, user.ErrAccountGone
	}
	c := cart.New(userID, now)
	q.d.carts[c.ID] = *c
	q.d.cartByUser[userID] = c.ID
	return c, nil
}

func (q *queries) LockCart(_ context.Context, cartID string) error {
	if err := q.m.record("LockCart"); err != nil {
		return err
	}
	if _, ok := q.d.carts[cartID]; !ok {
		return apperr.Persistence(errors.Newf("cart %s does not exist", cartID), "LockCart")
	}
	return nil
}

func (q *queries) GetCartItem(_ context.Context, cartID, productID string) (*cart.Item, bool, error) {
	if err := q.m.record("GetCartItem"); err != nil {
		return nil, false, err
	}
	it, ok := q.d.cartItems[cartID][productID]
	if !ok {
		return nil, false, nil
	}
	return &it, true, nil
}

func (q *queries) putItem(cartID, productID string, quantity int, now time.Time) (int, error) {
	if _, ok := q.d.products[productID]; !ok {
		return 0, product.ErrProductNotFound
	}
	if quantity <= 0 {
		return 0, apperr.Persistence(errors.Newf("quantity %d violates check constraint", quantity), "cart_items")
	}
	if quantity > cart.MaxQuantity {
		return 0, cart.ErrQuantityTooLarge
	}
	items, ok := q.d.cartItems[cartID]
	if !ok {
		items = make(map[string]cart.Item)
		q.d.cartItems[cartID] = items
	}
	it, ok := items[productID]
	if !ok {
		it = cart.Item{CartID: cartID, ProductID: productID, CreatedAt: now}
	}
	it.Quantity = quantity
	it.UpdatedAt = now
	items[productID] = it
	return quantity, nil
}

func (q *queries) AddCartItem(_ context.Context, cartID, productID string, delta int, now time.Time) (int, error) {
	if err := q.m.record("AddCartItem"); err != nil {
		return 0, err
	}
	current := q.d.cartItems[cartID][productID].Quantity
	return q.putItem(cartID, productID, current+delta, now)
}

func (q *queries) SetCartItem(_ context.Context, cartID, productID string, quantity int, now time.Time) error {
	if err := q.m.record("SetCartItem"); err != nil {
		return err
	}
	_, err := q.putItem(cartID, productID, quantity, now)
	return err
}

func (q *queries) DeleteCartItem(_ context.Context, cartID, productID string) (bool, error) {
	if err := q.m.record("DeleteCartItem"); err != nil {
		return false, err
	}
	if _, ok := q.d.cartItems[cartID][productID]; !ok {
		return false, nil
	}
	delete(q.d.cartItems[cartID], productID)
	return true, nil
}

func (q *queries) ListCartLines(_ context.Context, cartID string) ([]cart.Line, error) {
	if err := q.m.record("ListCartLines"); err != nil {
		return nil, err
	}
	return q.cartLines(cartID), nil
}

// LockCartLines has nothing to lock: a transaction already owns the data
// until it commits.
func (q *queries) LockCartLines(_ context.Context, cartID string) ([]cart.Line, error) {
	if err := q.m.record("LockCartLines"); err != nil {
		return nil, err
	}
	return q.cartLines(cartID), nil
}

func (q *queries) cartLines(cartID string) []cart.Line {
	lines := []cart.Line{}
	for productID, it := range q.d.cartItems[cartID] {
		lines = append(lines, cart.Line{Product: q.d.products[productID], Quantity: it.Quantity})
	}
	cart.SortLines(lines)
	return lines
}

func (q *queries) ClearCart(_ context.Context, cartID string) (int, error) {
	if err := q.m.record("ClearCart"); err != nil {
		return 0, err
	}
	n := len(q.d.cartItems[cartID])
	delete(q.d.cartItems, cartID)
	return n, nil
}

func (q *queries) CreateOrder(_ context.Context, o *order.Order) error {
	if err := q.m.record("CreateOrder"); err != nil {
		return err
	}
	if _, ok := q.d.users[o.UserID]; !ok {
		return apperr.Persistence(errors.Newf("user %s does not exist", o.UserID), "CreateOrder")
	}
	header := *o
	header.Items = []order.Item{}
	q.d.orders[o.ID] = header
	return nil
}

func (q *queries) InsertOrderItem(_ context.Context, item order.Item) error {
	if err := q.m.record("InsertOrderItem"); err != nil {
		return err
	}
	o, ok := q.d.orders[item.OrderID]
	if !ok {
		return apperr.Persistence(errors.Newf("order %s does not exist", item.OrderID), "InsertOrderItem")
	}
	o.Items = append(o.Items, item)
	sort.Slice(o.Items, func(i, j int) bool {
		if o.Items[i].Title != o.Items[j].Title {
			return o.Items[i].Title < o.Items[j].Title
		}
		return o.Items[i].ID < o.Items[j].ID
	})
	q.d.orders[item.OrderID] = o
	return nil
}

func (q *queries) GetOrder(_ context.Context, id string) (*order.Order, bool, error) {
	if err := q.m.record("GetOrder"); err != nil {
		return nil, false, err
	}
	o, ok := q.d.orders[id]
	if !ok {
		return nil, false, nil
	}
	o.Items = append([]order.Item{}, o.Items...)
	return &o, true, nil
}

func (q *queries) ListOrdersByUser(_ context.Context, userID string) ([]order.Order, error) {
	if err := q.m.record("ListOrdersByUser"); err != nil {
		return nil, err
	}
	orders := []order.Order{}
	for _, o := range q.d.orders {
		if o.UserID == userID {
			o.Items = append([]order.Item{}, o.Items...)
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (q *queries) AppendEvent(_ context.Context, e store.Event) error {
	if err := q.m.record("AppendEvent"); err != nil {
		return err
	}
	q.d.events = append(q.d.events, eventRow{event: e})
	return nil
}

func (q *queries) ListPendingEvents(_ context.Context, limit int) ([]store.Event, error) {
	if err := q.m.record("ListPendingEvents"); err != nil {
		return nil, err
	}
	var events []store.Event
	for _, row := range q.d.events {
		if len(events) == limit {
			break
		}
		if row.publishedAt == nil {
			events = append(events, row.event)
		}
	}
	return events, nil
}

func (q *queries) MarkEventsPublished(_ context.Context, ids []string, at time.Time) error {
	if err := q.m.record("MarkEventsPublished"); err != nil {
		return err
	}
	marked := make(map[string]bool, len(ids))
	for _, id := range ids {
		marked[id] = true
	}
	for i := range q.d.events {
		if marked[q.d.events[i].event.ID] && q.d.events[i].publishedAt == nil {
			t := at
			q.d.events[i].publishedAt = &t
		}
	}
	return nil
}
