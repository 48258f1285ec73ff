package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bioclinics/backoffice/internal/domain"
)

// LoginResult carries the token and the raw user record. The user stays a
// map because the session layer tolerates several spellings of its fields.
type LoginResult struct {
	Token     string
	User      map[string]any
	ExpiresAt string
}

func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var raw map[string]json.RawMessage
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   domain.LoginRequest{Username: username, Password: password},
	}, &raw)
	if err != nil {
		return LoginResult{}, err
	}

	var result LoginResult
	for _, key := range []string{"access_token", "accessToken", "token"} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, &result.Token); err == nil && result.Token != "" {
				break
			}
		}
	}
	if result.Token == "" {
		return LoginResult{}, fmt.Errorf("login response carried no token")
	}
	if v, ok := raw["user"]; ok {
		_ = json.Unmarshal(v, &result.User)
	}
	if v, ok := raw["expires_at"]; ok {
		_ = json.Unmarshal(v, &result.ExpiresAt)
	}
	return result, nil
}

func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: req}, &user)
	return user, err
}

func (c *Client) Me(ctx context.Context) (map[string]any, error) {
	var user map[string]any
	err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me"}, &user)
	return user, err
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodGet, path: "/healthz"}, nil)
}

// Products

func (c *Client) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	query := url.Values{}
	setString(query, "q", filter.Query)
	setInt(query, "page", int64(filter.Page))
	setInt(query, "limit", int64(filter.Limit))

	var page domain.ProductPage
	err := c.do(ctx, request{method: http.MethodGet, path: "/products", query: query}, &page)
	return page, err
}

func (c *Client) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	var product domain.Product
	err := c.do(ctx, request{method: http.MethodGet, path: itemPath("/products", id)}, &product)
	return product, err
}

func (c *Client) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	var product domain.Product
	err := c.do(ctx, request{method: http.MethodPost, path: "/products", body: req}, &product)
	return product, err
}

func (c *Client) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	var product domain.Product
	err := c.do(ctx, request{method: http.MethodPatch, path: itemPath("/products", id), body: req}, &product)
	return product, err
}

func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: itemPath("/products", id)}, nil)
}

// SetProductActive flips a product's active flag through the dedicated
// activate and deactivate routes.
func (c *Client) SetProductActive(ctx context.Context, id int64, active bool) (domain.Product, error) {
	var product domain.Product
	err := c.do(ctx, request{method: http.MethodPatch, path: togglePath("/products", id, active)}, &product)
	return product, err
}

// Catalog lookups

func (c *Client) ListProductTypes(ctx context.Context) ([]domain.ProductType, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/product-types"}, &raw); err != nil {
		return nil, err
	}
	return listOf[domain.ProductType](raw)
}

func (c *Client) ListLaboratories(ctx context.Context) ([]domain.Laboratory, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/laboratories"}, &raw); err != nil {
		return nil, err
	}
	return listOf[domain.Laboratory](raw)
}

func (c *Client) CreateLaboratory(ctx context.Context, req domain.LaboratoryRequest) (domain.Laboratory, error) {
	var lab domain.Laboratory
	err := c.do(ctx, request{method: http.MethodPost, path: "/laboratories", body: req}, &lab)
	return lab, err
}

func (c *Client) UpdateLaboratory(ctx context.Context, id int64, req domain.LaboratoryRequest) (domain.Laboratory, error) {
	var lab domain.Laboratory
	err := c.do(ctx, request{method: http.MethodPatch, path: itemPath("/laboratories", id), body: req}, &lab)
	return lab, err
}

func (c *Client) DeleteLaboratory(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: itemPath("/laboratories", id)}, nil)
}

// Movements. Listings come back raw: older servers answer with a bare array,
// newer ones wrap it with a summary, and callers normalise either form.

// MovementQuery is the wire form of the shared ledger filter. Dates are
// calendar days, both ends inclusive.
type MovementQuery struct {
	StartDate    string
	EndDate      string
	ProductID    int64
	LaboratoryID int64
	UserID       int64
	SaleID       int64
	IsAdjustment *bool
	Limit        int
}

func (q MovementQuery) values() url.Values {
	query := url.Values{}
	setString(query, "startDate", q.StartDate)
	setString(query, "endDate", q.EndDate)
	setInt(query, "productId", q.ProductID)
	setInt(query, "laboratoryId", q.LaboratoryID)
	setInt(query, "userId", q.UserID)
	setInt(query, "saleId", q.SaleID)
	if q.IsAdjustment != nil {
		query.Set("isAdjustment", strconv.FormatBool(*q.IsAdjustment))
	}
	setInt(query, "limit", int64(q.Limit))
	return query
}

func (c *Client) ListProductInputs(ctx context.Context, q MovementQuery) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{method: http.MethodGet, path: "/product-inputs", query: q.values()}, &raw)
	return raw, err
}

func (c *Client) ListProductOutputs(ctx context.Context, q MovementQuery) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{method: http.MethodGet, path: "/product-outputs", query: q.values()}, &raw)
	return raw, err
}

func (c *Client) CreateProductInput(ctx context.Context, req domain.ProductInputCreateRequest) (domain.ProductInput, error) {
	var input domain.ProductInput
	err := c.do(ctx, request{method: http.MethodPost, path: "/product-inputs", body: req}, &input)
	return input, err
}

func (c *Client) CreateProductOutput(ctx context.Context, req domain.ProductOutputCreateRequest) (domain.ProductOutput, error) {
	var output domain.ProductOutput
	err := c.do(ctx, request{method: http.MethodPost, path: "/product-outputs", body: req}, &output)
	return output, err
}

func (c *Client) CreateAdjustment(ctx context.Context, req domain.AdjustmentRequest) (domain.ProductOutput, error) {
	var output domain.ProductOutput
	err := c.do(ctx, request{method: http.MethodPost, path: "/product-outputs/adjustment", body: req}, &output)
	return output, err
}

// Sales

// CreateSale posts a sale. A non-empty idempotency key makes retries safe;
// replayed reports whether the server answered with an earlier sale.
func (c *Client) CreateSale(ctx context.Context, req domain.SaleRequest, idempotencyKey string) (sale domain.Sale, replayed bool, err error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}
	resp, err := c.exchange(ctx, request{method: http.MethodPost, path: "/sales", body: req, headers: headers}, &sale)
	if err != nil {
		return domain.Sale{}, false, err
	}
	replayed = strings.EqualFold(resp.header.Get("Idempotent-Replayed"), "true")
	return sale, replayed, nil
}

func (c *Client) GetSale(ctx context.Context, id int64) (domain.Sale, error) {
	var sale domain.Sale
	err := c.do(ctx, request{method: http.MethodGet, path: itemPath("/sales", id)}, &sale)
	return sale, err
}

type SalesQuery struct {
	StartDate string
	EndDate   string
	UserID    int64
	ProductID int64
	Page      int
	Limit     int
}

func (c *Client) ListSales(ctx context.Context, q SalesQuery) (domain.SalePage, error) {
	query := url.Values{}
	setString(query, "startDate", q.StartDate)
	setString(query, "endDate", q.EndDate)
	setInt(query, "userId", q.UserID)
	setInt(query, "productId", q.ProductID)
	setInt(query, "page", int64(q.Page))
	setInt(query, "limit", int64(q.Limit))

	var page domain.SalePage
	err := c.do(ctx, request{method: http.MethodGet, path: "/sales", query: query}, &page)
	return page, err
}

// SalesReport fetches the report for targetDate. The body is returned raw
// since its summary has been published under several names.
func (c *Client) SalesReport(ctx context.Context, targetDate time.Time, page, limit int) (json.RawMessage, error) {
	query := url.Values{}
	if !targetDate.IsZero() {
		query.Set("targetDate", targetDate.Format(domain.DateLayout))
	}
	setInt(query, "page", int64(page))
	setInt(query, "limit", int64(limit))

	var raw json.RawMessage
	err := c.do(ctx, request{method: http.MethodGet, path: "/sales/report", query: query}, &raw)
	return raw, err
}

// Users

func (c *Client) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	query := url.Values{}
	setString(query, "name", filter.Name)
	if filter.IsActive != nil {
		query.Set("isActive", strconv.FormatBool(*filter.IsActive))
	}

	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users", query: query}, &raw); err != nil {
		return nil, err
	}
	return listOf[domain.User](raw)
}

func (c *Client) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, request{method: http.MethodPost, path: "/users", body: req}, &user)
	return user, err
}

func (c *Client) UpdateUser(ctx context.Context, id int64, req domain.UserUpdateRequest) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, request{method: http.MethodPatch, path: itemPath("/users", id), body: req}, &user)
	return user, err
}

func (c *Client) SetUserActive(ctx context.Context, id int64, active bool) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, request{method: http.MethodPatch, path: togglePath("/users", id, active)}, &user)
	return user, err
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, request{method: http.MethodDelete, path: itemPath("/users", id)}, nil)
}

// listOf accepts a bare array or an object wrapping it under data or items.
func listOf[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapper struct {
		Data  []T `json:"data"`
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, err
	}
	switch {
	case wrapper.Data != nil:
		return wrapper.Data, nil
	case wrapper.Items != nil:
		return wrapper.Items, nil
	}
	return []T{}, nil
}

func itemPath(base string, id int64) string {
	return base + "/" + strconv.FormatInt(id, 10)
}

func togglePath(base string, id int64, active bool) string {
	if active {
		return itemPath(base, id) + "/activate"
	}
	return itemPath(base, id) + "/deactivate"
}

func setString(query url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		query.Set(key, value)
	}
}

func setInt(query url.Values, key string, value int64) {
	if value > 0 {
		query.Set(key, strconv.FormatInt(value, 10))
	}
}
