package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/roles"
	"bioclinics/backoffice/internal/service"
	"bioclinics/backoffice/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0]
	for _, ts := range l.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

var (
	anyRole   = []roles.Role{roles.Root, roles.Admin, roles.Staff}
	adminOnly = []roles.Role{roles.Root, roles.Admin}
)

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(a.withSecurity)

	r.Get("/healthz", a.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.handleLogin)
		r.Post("/register", a.handleRegister)
		r.Get("/me", a.requireAuth(a.handleMe, anyRole...))
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", a.requireAuth(a.handleListProducts, anyRole...))
		r.Post("/", a.requireAuth(a.handleCreateProduct, adminOnly...))
		r.Get("/{id}", a.requireAuth(a.handleGetProduct, anyRole...))
		r.Put("/{id}", a.requireAuth(a.handleUpdateProduct, adminOnly...))
		r.Patch("/{id}", a.requireAuth(a.handleUpdateProduct, adminOnly...))
		r.Delete("/{id}", a.requireAuth(a.handleDeleteProduct, adminOnly...))
		r.Patch("/{id}/activate", a.requireAuth(a.handleProductActive(true), adminOnly...))
		r.Patch("/{id}/deactivate", a.requireAuth(a.handleProductActive(false), adminOnly...))
	})

	r.Route("/product-types", func(r chi.Router) {
		r.Get("/", a.requireAuth(a.handleListProductTypes, anyRole...))
		r.Get("/{id}", a.requireAuth(a.handleGetProductType, anyRole...))
	})

	r.Route("/laboratories", func(r chi.Router) {
		r.Get("/", a.requireAuth(a.handleListLaboratories, anyRole...))
		r.Post("/", a.requireAuth(a.handleCreateLaboratory, adminOnly...))
		r.Get("/{id}", a.requireAuth(a.handleGetLaboratory, anyRole...))
		r.Put("/{id}", a.requireAuth(a.handleUpdateLaboratory, adminOnly...))
		r.Patch("/{id}", a.requireAuth(a.handleUpdateLaboratory, adminOnly...))
		r.Delete("/{id}", a.requireAuth(a.handleDeleteLaboratory, adminOnly...))
	})

	r.Route("/product-inputs", func(r chi.Router) {
		r.Get("/", a.requireAuth(a.handleListProductInputs, anyRole...))
		r.Post("/", a.requireAuth(a.handleCreateProductInput, anyRole...))
	})

	r.Route("/product-outputs", func(r chi.Router) {
		r.Get("/", a.requireAuth(a.handleListProductOutputs, anyRole...))
		r.Post("/", a.requireAuth(a.handleCreateProductOutput, anyRole...))
		r.Post("/adjustment", a.requireAuth(a.handleCreateAdjustment, anyRole...))
	})

	r.Route("/sales", func(r chi.Router) {
		r.Get("/", a.requireAuth(a.handleListSales, anyRole...))
		r.Post("/", a.requireAuth(a.handleCreateSale, anyRole...))
		r.Get("/report", a.requireAuth(a.handleSalesReport, anyRole...))
		r.Get("/{id}", a.requireAuth(a.handleGetSale, anyRole...))
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", a.requireAuth(a.handleListUsers, adminOnly...))
		r.Post("/", a.requireAuth(a.handleCreateUser, adminOnly...))
		r.Get("/{id}", a.requireAuth(a.handleGetUser, adminOnly...))
		r.Patch("/{id}", a.requireAuth(a.handleUpdateUser, adminOnly...))
		r.Put("/{id}", a.requireAuth(a.handleUpdateUser, adminOnly...))
		r.Delete("/{id}", a.requireAuth(a.handleDeleteUser, adminOnly...))
		r.Patch("/{id}/activate", a.requireAuth(a.handleUserActive(true), adminOnly...))
		r.Patch("/{id}/deactivate", a.requireAuth(a.handleUserActive(false), adminOnly...))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})

	return r
}

func (a *API) requireAuth(next http.HandlerFunc, allowed ...roles.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(allowed) > 0 && !roles.In(actor.Role, allowed...) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authorization) < len("bearer ") || !strings.EqualFold(authorization[:len("bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authorization[len("bearer "):])
	return token, token != ""
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusFor maps service and store errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAdminRequired), errors.Is(err, service.ErrAccountInactive), errors.Is(err, service.ErrRegistrationClosed):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: id must be a positive integer", store.ErrInvalidInput)
	}
	return id, nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", store.ErrInvalidInput, key)
	}
	return v, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false", store.ErrInvalidInput, key)
	}
	return &v, nil
}

// queryDateRange reads inclusive startDate/endDate days and returns a
// half-open [from, to) range.
func queryDateRange(r *http.Request) (*time.Time, *time.Time, error) {
	from, err := queryDate(r, "startDate")
	if err != nil {
		return nil, nil, err
	}
	end, err := queryDate(r, "endDate")
	if err != nil {
		return nil, nil, err
	}
	var to *time.Time
	if end != nil {
		next := end.AddDate(0, 0, 1)
		to = &next
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, fmt.Errorf("%w: startDate must not be after endDate", store.ErrInvalidInput)
	}
	return from, to, nil
}

func queryDate(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	if len(raw) > len(domain.DateLayout) {
		raw = raw[:len(domain.DateLayout)]
	}
	t, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", store.ErrInvalidInput, key)
	}
	return &t, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Printf("[httpapi] internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"message": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
