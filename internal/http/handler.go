package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type Options struct {
	Sessions           *session.Registry
	StorageURL         string
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	Gatherer           prometheus.Gatherer
	Logger             *zap.Logger
}

// Handler serves the storefront JSON API for browser and CLI clients.
type Handler struct {
	sessions   *session.Registry
	storageURL string
	timeout    time.Duration
	maxBody    int64
	log        *zap.Logger
}

func NewHandler(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		sessions:   opts.Sessions,
		storageURL: opts.StorageURL,
		timeout:    timeout,
		maxBody:    opts.MaxRequestBodySize,
		log:        log,
	}
}

// NewRouter builds the full route tree with middleware.
func NewRouter(opts Options) http.Handler {
	h := NewHandler(opts)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(h.timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware)
		if h.maxBody > 0 {
			r.Use(middleware.RequestSize(h.maxBody))
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{item_id}", h.UpdateQuantity)
			r.Delete("/items/{item_id}", h.RemoveItem)
			r.Post("/reconcile", h.Reconcile)
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", h.GetCheckout)
			r.Post("/confirm", h.ConfirmCheckout)
			r.Post("/back", h.BackCheckout)
			r.Post("/submit", h.SubmitOrder)
		})
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Post("/signup", h.Signup)
		})
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Get("/orders", h.ListOrders)
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/brands", h.ListBrands)
			r.Get("/subcategories/{sub_category_id}/products", h.ListProducts)
		})
		r.Route("/locations", func(r chi.Router) {
			r.Get("/countries", h.ListCountries)
			r.Get("/countries/{iso2}/states", h.ListStates)
		})
	})

	return otelhttp.NewHandler(r, "storefront")
}

// session resolves the caller's session, writing the error response on
// failure.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.sessions.Get(r.Context(), getSessionID(r.Context()))
	if err != nil {
		h.handleError(w, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}
