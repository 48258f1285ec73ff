package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bioclinics/backoffice/internal/domain"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func TestLoginAcceptsTokenSpellings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		var body domain.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "staff", body.Username)
		_, _ = w.Write([]byte(`{"token":"abc","user":{"id_user":3,"username":"staff"}}`))
	}))
	defer srv.Close()

	result, err := New(srv.URL).Login(context.Background(), "staff", "secret")
	require.NoError(t, err)
	assert.Equal(t, "abc", result.Token)
	assert.Equal(t, "staff", result.User["username"])
}

func TestBearerTokenAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "para", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Empty(t, r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"Paracetamol","price":8.5,"stock":120}],"total":1,"page":2,"limit":10,"pages":1}`))
	}))
	defer srv.Close()

	client := New(srv.URL+"/", WithTokenSource(staticToken("tok")))
	page, err := client.ListProducts(context.Background(), domain.ProductFilter{Query: " para ", Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.True(t, page.Data[0].Price.Equal(decimal.RequireFromString("8.5")))
}

func TestErrorMessageExtraction(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message", http.StatusConflict, `{"message":"insufficient stock for Paracetamol"}`, "insufficient stock for Paracetamol"},
		{"error", http.StatusBadRequest, `{"error":"bad payload"}`, "bad payload"},
		{"list", http.StatusBadRequest, `{"message":["name is required","price must be positive"]}`, "name is required; price must be positive"},
		{"blank", http.StatusForbidden, `{"message":"  "}`, "request failed (403 Forbidden)"},
		{"not json", http.StatusBadGateway, `<html>`, "request failed (502 Bad Gateway)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).GetProduct(context.Background(), 1)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.want, apiErr.Message)
			assert.Equal(t, tc.status, StatusOf(err))
		})
	}
}

func TestCreateSaleSendsIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		var req domain.SaleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Items, 1)
		assert.Equal(t, int64(1), req.Items[0].ProductID)

		w.Header().Set("Idempotent-Replayed", "true")
		_, _ = w.Write([]byte(`{"id":9,"total":17,"items":[]}`))
	}))
	defer srv.Close()

	sale, replayed, err := New(srv.URL).CreateSale(context.Background(), domain.SaleRequest{
		Total: decimal.NewFromInt(17),
		Items: []domain.SaleItemRequest{{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("8.5"), Subtotal: decimal.NewFromInt(17)}},
	}, "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, int64(9), sale.ID)
}

func TestListOfAcceptsBareAndWrapped(t *testing.T) {
	bare, err := listOf[domain.Laboratory](json.RawMessage(`[{"id":1,"name":"Bayer"}]`))
	require.NoError(t, err)
	require.Len(t, bare, 1)

	wrapped, err := listOf[domain.Laboratory](json.RawMessage(`{"data":[{"id":2,"name":"Roche"}]}`))
	require.NoError(t, err)
	require.Len(t, wrapped, 1)
	assert.Equal(t, "Roche", wrapped[0].Name)

	items, err := listOf[domain.ProductType](json.RawMessage(`{"items":[{"id":3,"name":"Jarabe"}]}`))
	require.NoError(t, err)
	require.Len(t, items, 1)

	empty, err := listOf[domain.ProductType](json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBreakerOpensOnServerErrorsOnly(t *testing.T) {
	var hits atomic.Int32
	status := atomic.Int32{}
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"message":"nope"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, WithBreaker(2, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := client.GetProduct(ctx, 1)
		assert.Equal(t, http.StatusNotFound, StatusOf(err))
	}
	assert.Equal(t, int32(3), hits.Load())

	status.Store(http.StatusInternalServerError)
	for i := 0; i < 2; i++ {
		_, err := client.GetProduct(ctx, 1)
		assert.Equal(t, http.StatusInternalServerError, StatusOf(err))
	}

	_, err := client.GetProduct(ctx, 1)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, int32(5), hits.Load())
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).Health(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, StatusOf(err))
}
