package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/command"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/query"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	health       Pinger
	log          *slog.Logger
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, health Pinger, log *slog.Logger) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		health:       health,
		log:          log,
	}
}

// Product Handlers

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var cmd command.CreateProduct
	if err := decodeJSON(w, r, &cmd); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	p, err := h.cmdHandler.CreateProduct(r.Context(), cmd)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	w.Header().Set("Location", "/products/"+p.ID)
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.queryHandler.ListProducts(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	p, err := h.queryHandler.GetProduct(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, r, h.log, command.ErrMissingUser)
		return
	}

	cart, err := h.queryHandler.ViewCart(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// CartItemResponse is the quantity of a product after a cart change.
type CartItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, r, h.log, command.ErrMissingUser)
		return
	}

	var cmd command.AddToCart
	if err := decodeJSON(w, r, &cmd); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	cmd.UserID = claims.UserID

	quantity, err := h.cmdHandler.AddToCart(r.Context(), cmd)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	// AddToCart only succeeds for a valid id.
	productID, _ := product.ParseID(cmd.ProductID)
	respondJSON(w, http.StatusOK, CartItemResponse{ProductID: productID, Quantity: quantity})
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, r, h.log, command.ErrMissingUser)
		return
	}

	var body struct {
		Quantity *int `json:"quantity"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if body.Quantity == nil {
		respondJSONError(w, "quantity is required", http.StatusBadRequest)
		return
	}

	cmd := command.SetCartItemQuantity{
		UserID:    claims.UserID,
		ProductID: extractPathParam(r.URL.Path, "/cart/items/"),
		Quantity:  *body.Quantity,
	}
	if err := h.cmdHandler.SetCartItemQuantity(r.Context(), cmd); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, r, h.log, command.ErrMissingUser)
		return
	}

	cmd := command.RemoveFromCart{
		UserID:    claims.UserID,
		ProductID: extractPathParam(r.URL.Path, "/cart/items/"),
	}
	if err := h.cmdHandler.RemoveFromCart(r.Context(), cmd); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Order Handlers

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, r, h.log, command.ErrMissingUser)
		return
	}

	o, err := h.cmdHandler.Checkout(r.Context(), command.Checkout{UserID: claims.UserID})
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	w.Header().Set("Location", "/orders/"+o.ID)
	respondJSON(w, http.StatusCreated, query.NewOrderReadModel(o))
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, r, h.log, command.ErrMissingUser)
		return
	}

	orders, err := h.queryHandler.ListOrders(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, r, h.log, command.ErrMissingUser)
		return
	}

	id := extractPathParam(r.URL.Path, "/orders/")
	o, err := h.queryHandler.GetOrder(r.Context(), claims.UserID, claims.Role == user.RoleAdmin, id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Health

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		h.log.WarnContext(ctx, "health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
