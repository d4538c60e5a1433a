// Package httpapi exposes the HTTP surface: health, metrics, REST listings and the WebSocket entry point.
package httpapi

import (
	"context"
	"encoding/json"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/errors"
	"group-cart/runtime"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MemberLister interface {
	Members(ctx context.Context, groupID domain.GroupID) ([]domain.Member, error)
}

type ProductLister interface {
	Products(ctx context.Context) ([]domain.Product, error)
}

// ConnectionServer runs one client channel until it ends.
type ConnectionServer interface {
	Serve(ctx context.Context, conn runtime.FrameConn, hello domain.Hello) error
}

// RouterDeps gathers what NewRouter needs.
type RouterDeps struct {
	Log          *slog.Logger
	Members      MemberLister
	Products     ProductLister
	Gateway      ConnectionServer
	Gatherer     prometheus.Gatherer
	MaxFrameSize int64
	// AllowedOrigins restricts the WebSocket handshake. Empty accepts any origin.
	AllowedOrigins []string
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	rest := restHandler{log: deps.Log, members: deps.Members, products: deps.Products}
	ws := NewWebSocketHandler(deps.Log, deps.Gateway, deps.MaxFrameSize, deps.AllowedOrigins)

	r.Get("/health", rest.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/groups/{groupID}/members", rest.ListMembers)
		r.Get("/products", rest.ListProducts)
	})
	r.Get("/ws", ws.ServeHTTP)
	return r
}

type restHandler struct {
	log      *slog.Logger
	members  MemberLister
	products ProductLister
}

type productResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"image_url"`
	Description string  `json:"description"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Health answers GET /health.
func (h restHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListMembers answers GET /api/groups/{groupID}/members.
func (h restHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	groupID := domain.GroupID(chi.URLParam(r, "groupID"))
	members, err := h.members.Members(r.Context(), groupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event.FromMembers(members))
}

// ListProducts answers GET /api/products.
func (h restHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.Products(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, productResponse{
			ID:          p.ID,
			Name:        p.Name,
			Price:       p.Price,
			ImageURL:    p.ImageURL,
			Description: p.Description,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h restHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.Code(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.CodeValidation:
		status = http.StatusBadRequest
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodePersistence:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: errors.Message(err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
