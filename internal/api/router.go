package api

import (
	"log/slog"
	"net/http"

	"github.com/example/ec-shop/internal/api/middleware"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterConfig carries everything the router wires together. Gatherer may be
// nil, in which case /metrics is not served.
type RouterConfig struct {
	Handlers     *Handlers
	AuthHandlers *AuthHandlers
	JWTService   *auth.JWTService
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	handlers := cfg.Handlers
	authHandlers := cfg.AuthHandlers

	requireUser := middleware.AuthMiddleware(cfg.JWTService)
	requireAdmin := func(next http.HandlerFunc) http.Handler {
		return requireUser(middleware.RequireRole(user.RoleAdmin)(next))
	}
	authed := func(next http.HandlerFunc) http.Handler {
		return requireUser(next)
	}

	// Auth
	mux.HandleFunc("/auth/register", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			authHandlers.Register(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			authHandlers.Login(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			authHandlers.Logout(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			authed(authHandlers.Me).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Products
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProducts(w, r)
		case http.MethodPost:
			requireAdmin(handlers.CreateProduct).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/products/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProduct(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Cart
	mux.HandleFunc("/cart", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			authed(handlers.GetCart).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/cart/items", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			authed(handlers.AddToCart).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/cart/items/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			authed(handlers.UpdateCartItem).ServeHTTP(w, r)
		case http.MethodDelete:
			authed(handlers.RemoveFromCart).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Orders
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			authed(handlers.GetOrders).ServeHTTP(w, r)
		case http.MethodPost:
			authed(handlers.CreateOrder).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			authed(handlers.GetOrder).ServeHTTP(w, r)
		default:
			methodNotAllowed(w)
		}
	})

	// Operations
	mux.HandleFunc("/healthz", handlers.Healthz)
	if cfg.Gatherer != nil {
		mux.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	return middleware.Logging(cfg.Logger, cfg.Metrics)(middleware.Recover(cfg.Logger)(mux))
}

func methodNotAllowed(w http.ResponseWriter) {
	respondJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
}
