package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/crdb"
	"github.com/cockroachdb/errors"
	"github.com/example/ec-shop/internal/apperr"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/lib/pq"
)

// PostgreSQL error codes the store reacts to.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	*queries
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-based store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{queries: &queries{db: db}, db: db}
}

// InTx runs fn inside crdb.ExecuteTx, which retries fn on serialization
// failures and rolls back on any error.
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	err := crdb.ExecuteTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		return fn(&queries{db: tx})
	})
	if err != nil && apperr.Kind(err) == nil {
		return apperr.Persistence(err, "transaction")
	}
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return apperr.Persistence(s.db.PingContext(ctx), "ping")
}

type queries struct {
	db dbtx
}

func pgCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// Product operations

func (q *queries) CreateProduct(ctx context.Context, p *product.Product) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO products (id, title, price, description, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.Title, p.Price, p.Description, p.ImageURL, p.CreatedAt)
	return apperr.Persistence(err, "insert product")
}

func (q *queries) GetProduct(ctx context.Context, id string) (*product.Product, bool, error) {
	var p product.Product
	err := q.db.QueryRowContext(ctx, `
		SELECT id, title, price, description, image_url, created_at
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Title, &p.Price, &p.Description, &p.ImageURL, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Persistence(err, "select product")
	}
	return &p, true, nil
}

func (q *queries) ListProducts(ctx context.Context) ([]product.Product, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, title, price, description, image_url, created_at
		FROM products ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, apperr.Persistence(err, "list products")
	}
	defer rows.Close()

	products := []product.Product{}
	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Description, &p.ImageURL, &p.CreatedAt); err != nil {
			return nil, apperr.Persistence(err, "scan product")
		}
		products = append(products, p)
	}
	return products, apperr.Persistence(rows.Err(), "list products")
}

// User operations

func (q *queries) CreateUser(ctx context.Context, u *user.User) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return errors.Mark(errors.Wrap(err, "insert user"), apperr.ErrConflict)
	}
	return apperr.Persistence(err, "insert user")
}

const userColumns = `id, email, password_hash, name, role, created_at`

func scanUser(row *sql.Row, op string) (*user.User, bool, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Persistence(err, op)
	}
	return &u, true, nil
}

func (q *queries) GetUser(ctx context.Context, id string) (*user.User, bool, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, "select user")
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*user.User, bool, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row, "select user by email")
}

// Cart operations

func (q *queries) GetCartByUser(ctx context.Context, userID string) (*cart.Cart, bool, error) {
	var c cart.Cart
	err := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at FROM carts WHERE user_id = $1`, userID,
	).Scan(&c.ID, &c.UserID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Persistence(err, "select cart")
	}
	return &c, true, nil
}

// GetOrCreateCart inserts a cart unless the user already has one, so two
// concurrent first writes end up sharing a single cart.
func (q *queries) GetOrCreateCart(ctx context.Context, userID string, now time.Time) (*cart.Cart, error) {
	fresh := cart.New(userID, now)
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, fresh.ID, fresh.UserID, fresh.CreatedAt)
	if pgCode(err) == pgForeignKeyViolation {
		return nil, user.ErrAccountGone
	}
	if err != nil {
		return nil, apperr.Persistence(err, "insert cart")
	}

	c, ok, err := q.GetCartByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Persistence(errors.Newf("cart for user %s vanished", userID), "get or create cart")
	}
	return c, nil
}

func (q *queries) LockCart(ctx context.Context, cartID string) error {
	var id string
	err := q.db.QueryRowContext(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, cartID).Scan(&id)
	return apperr.Persistence(err, "lock cart")
}

func (q *queries) GetCartItem(ctx context.Context, cartID, productID string) (*cart.Item, bool, error) {
	var it cart.Item
	err := q.db.QueryRowContext(ctx, `
		SELECT cart_id, product_id, quantity, created_at, updated_at
		FROM cart_items WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID).Scan(&it.CartID, &it.ProductID, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Persistence(err, "select cart item")
	}
	return &it, true, nil
}

func (q *queries) AddCartItem(ctx context.Context, cartID, productID string, delta int, now time.Time) (int, error) {
	var quantity int
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity,
			updated_at = EXCLUDED.updated_at
		RETURNING quantity
	`, cartID, productID, delta, now).Scan(&quantity)
	switch pgCode(err) {
	case pgForeignKeyViolation:
		return 0, product.ErrProductNotFound
	case pgCheckViolation:
		return 0, cart.ErrQuantityTooLarge
	}
	if err != nil {
		return 0, apperr.Persistence(err, "upsert cart item")
	}
	return quantity, nil
}

func (q *queries) SetCartItem(ctx context.Context, cartID, productID string, quantity int, now time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			updated_at = EXCLUDED.updated_at
	`, cartID, productID, quantity, now)
	switch pgCode(err) {
	case pgForeignKeyViolation:
		return product.ErrProductNotFound
	case pgCheckViolation:
		return cart.ErrQuantityTooLarge
	}
	return apperr.Persistence(err, "set cart item")
}

func (q *queries) DeleteCartItem(ctx context.Context, cartID, productID string) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	if err != nil {
		return false, apperr.Persistence(err, "delete cart item")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Persistence(err, "delete cart item")
	}
	return n > 0, nil
}

const cartLinesQuery = `
	SELECT p.id, p.title, p.price, p.description, p.image_url, p.created_at, ci.quantity
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
	WHERE ci.cart_id = $1
	ORDER BY p.title, p.id`

func (q *queries) ListCartLines(ctx context.Context, cartID string) ([]cart.Line, error) {
	return q.cartLines(ctx, cartLinesQuery, cartID, "list cart lines")
}

// LockCartLines waits for writers that already hold an item row, so the
// quantities it returns are the committed ones.
func (q *queries) LockCartLines(ctx context.Context, cartID string) ([]cart.Line, error) {
	return q.cartLines(ctx, cartLinesQuery+" FOR UPDATE OF ci", cartID, "lock cart lines")
}

func (q *queries) cartLines(ctx context.Context, query, cartID, op string) ([]cart.Line, error) {
	rows, err := q.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, apperr.Persistence(err, op)
	}
	defer rows.Close()

	lines := []cart.Line{}
	for rows.Next() {
		var l cart.Line
		p := &l.Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Price, &p.Description, &p.ImageURL, &p.CreatedAt, &l.Quantity); err != nil {
			return nil, apperr.Persistence(err, "scan cart line")
		}
		lines = append(lines, l)
	}
	return lines, apperr.Persistence(rows.Err(), op)
}

func (q *queries) ClearCart(ctx context.Context, cartID string) (int, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, apperr.Persistence(err, "clear cart")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Persistence(err, "clear cart")
	}
	return int(n), nil
}

// Order operations

func (q *queries) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, total, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, o.ID, o.UserID, string(o.Status), o.Total, o.CreatedAt)
	return apperr.Persistence(err, "insert order")
}

func (q *queries) InsertOrderItem(ctx context.Context, item order.Item) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO order_items (id, order_id, product_id, title, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.OrderID, item.ProductID, item.Title, item.UnitPrice, item.Quantity)
	return apperr.Persistence(err, "insert order item")
}

func (q *queries) GetOrder(ctx context.Context, id string) (*order.Order, bool, error) {
	var o order.Order
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, total, created_at FROM orders WHERE id = $1
	`, id).Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Persistence(err, "select order")
	}

	items, err := q.orderItems(ctx, []string{o.ID})
	if err != nil {
		return nil, false, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []order.Item{}
	}
	return &o, true, nil
}

func (q *queries) ListOrdersByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, status, total, created_at
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}
	defer rows.Close()

	orders := []order.Order{}
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.Total, &o.CreatedAt); err != nil {
			return nil, apperr.Persistence(err, "scan order")
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence(err, "list orders")
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := q.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []order.Item{}
		}
	}
	return orders, nil
}

func (q *queries) orderItems(ctx context.Context, orderIDs []string) (map[string][]order.Item, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, title, unit_price, quantity
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY title, id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, apperr.Persistence(err, "list order items")
	}
	defer rows.Close()

	byOrder := make(map[string][]order.Item, len(orderIDs))
	for rows.Next() {
		var it order.Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.UnitPrice, &it.Quantity); err != nil {
			return nil, apperr.Persistence(err, "scan order item")
		}
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	return byOrder, apperr.Persistence(rows.Err(), "list order items")
}

// Outbox operations

func (q *queries) AppendEvent(ctx context.Context, e Event) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.AggregateID, e.AggregateType, e.EventType, []byte(e.Data), e.Timestamp)
	return apperr.Persistence(err, "append event")
}

func (q *queries) ListPendingEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, data, created_at
		FROM events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperr.Persistence(err, "list pending events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e    Event
			data []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Timestamp); err != nil {
			return nil, apperr.Persistence(err, "scan event")
		}
		e.Data = data
		events = append(events, e)
	}
	return events, apperr.Persistence(rows.Err(), "list pending events")
}

func (q *queries) MarkEventsPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE events SET published_at = $2 WHERE id = ANY($1)`, pq.Array(ids), at)
	return apperr.Persistence(err, "mark events published")
}
