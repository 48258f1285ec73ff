package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bioclinics/backoffice/internal/apiclient"
	"bioclinics/backoffice/internal/cache"
	"bioclinics/backoffice/internal/cart"
	"bioclinics/backoffice/internal/config"
	"bioclinics/backoffice/internal/httpapi"
	"bioclinics/backoffice/internal/service"
	"bioclinics/backoffice/internal/store/memory"
)

type harness struct {
	cfg config.ClientConfig
	out bytes.Buffer
	err bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := service.New(memory.NewSeeded(), cache.NoopReportCache{}, time.Minute)
	auth := httpapi.NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, svc)
	srv := httptest.NewServer(httpapi.New(svc, auth, "http://localhost:5173").Handler())
	t.Cleanup(srv.Close)

	return &harness{cfg: config.ClientConfig{
		APIBaseURL:         srv.URL,
		SessionFile:        filepath.Join(t.TempDir(), "session.json"),
		HTTPTimeoutSeconds: 5,
		SearchDebounceMS:   20,
	}}
}

// run starts a fresh process-like app each time so the session has to come
// back from the file.
func (h *harness) run(t *testing.T, stdin string, args ...string) int {
	t.Helper()
	h.out.Reset()
	h.err.Reset()
	ctx := context.Background()
	a := newApp(ctx, h.cfg, strings.NewReader(stdin), &h.out, &h.err)
	defer a.close()
	return a.run(ctx, args)
}

func TestSellFlowClampsAndSubmits(t *testing.T) {
	h := newHarness(t)

	if code := h.run(t, "", "login", "-u", "staff", "-p", "staff123"); code != 0 {
		t.Fatalf("login failed (%d): %s", code, h.err.String())
	}
	if !strings.Contains(h.out.String(), "Signed in as staff") {
		t.Fatalf("unexpected login output %q", h.out.String())
	}

	if code := h.run(t, "", "sell", "-item", "1:2", "-item", "6:20"); code != 0 {
		t.Fatalf("sell failed (%d): %s", code, h.err.String())
	}
	if !strings.Contains(h.err.String(), "only 15 units") {
		t.Fatalf("expected clamp notice, got %q", h.err.String())
	}
	if !strings.Contains(h.out.String(), "total Bs 1442.00") {
		t.Fatalf("unexpected sale output %q", h.out.String())
	}

	if code := h.run(t, "", "products", "-q", "protector"); code != 0 {
		t.Fatalf("products failed: %s", h.err.String())
	}
	if !strings.Contains(h.out.String(), "Protector solar FPS50") || !strings.Contains(h.out.String(), "  0  ") {
		t.Fatalf("expected sold-out product row, got %q", h.out.String())
	}
}

func TestSellRejectsOutOfStockProduct(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "login", "-u", "staff", "-p", "staff123"); code != 0 {
		t.Fatalf("login failed: %s", h.err.String())
	}

	// Loratadina is seeded with no stock.
	if code := h.run(t, "", "sell", "-item", "8:1"); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(h.err.String(), "out of stock") {
		t.Fatalf("unexpected message %q", h.err.String())
	}
}

func TestCommandsRequireSession(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "ledger"); code != 1 {
		t.Fatalf("expected failure without a session, got %d", code)
	}
	if !strings.Contains(h.err.String(), "not signed in") {
		t.Fatalf("unexpected message %q", h.err.String())
	}
}

func TestStaffCannotManageUsers(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "login", "-u", "staff", "-p", "staff123"); code != 0 {
		t.Fatalf("login failed: %s", h.err.String())
	}
	if code := h.run(t, "", "toggle", "-user", "1"); code != 1 {
		t.Fatalf("expected role rejection, got %d", code)
	}
	if !strings.Contains(h.err.String(), "cannot open users") {
		t.Fatalf("unexpected message %q", h.err.String())
	}
}

func TestProductToggleRollsBackWhenServerRefuses(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "login", "-u", "staff", "-p", "staff123"); code != 0 {
		t.Fatalf("login failed: %s", h.err.String())
	}
	if code := h.run(t, "", "toggle", "-product", "1"); code != 1 {
		t.Fatalf("expected the server to refuse, got %d", code)
	}

	if code := h.run(t, "", "products", "-q", "paracetamol"); code != 0 {
		t.Fatalf("products failed: %s", h.err.String())
	}
	if !strings.Contains(h.out.String(), "true") {
		t.Fatalf("product should still be active, got %q", h.out.String())
	}
}

func TestLedgerAfterEntryAndAdjustment(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "login", "-u", "admin", "-p", "admin123"); code != 0 {
		t.Fatalf("login failed: %s", h.err.String())
	}
	if code := h.run(t, "", "entry", "-product", "2", "-lab", "1", "-boxes", "10", "-units", "10", "-cost", "5"); code != 0 {
		t.Fatalf("entry failed: %s", h.err.String())
	}
	if code := h.run(t, "", "adjust", "-product", "2", "-qty", "5", "-reason", "vencido"); code != 0 {
		t.Fatalf("adjust failed: %s", h.err.String())
	}

	if code := h.run(t, "", "ledger", "-product", "2"); code != 0 {
		t.Fatalf("ledger failed: %s", h.err.String())
	}
	out := h.out.String()
	if !strings.Contains(out, "Product: Ibuprofeno 400mg x10") {
		t.Fatalf("missing product label in %q", out)
	}
	if !strings.Contains(out, "Net:     +95 units") {
		t.Fatalf("unexpected net units in %q", out)
	}
}

func TestAdjustNeedsReason(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "login", "-u", "admin", "-p", "admin123"); code != 0 {
		t.Fatalf("login failed: %s", h.err.String())
	}
	if code := h.run(t, "", "adjust", "-product", "2", "-qty", "1"); code != 1 {
		t.Fatalf("expected missing reason to fail, got %d", code)
	}
}

func TestReportShowsTodaysSale(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "login", "-u", "staff", "-p", "staff123"); code != 0 {
		t.Fatalf("login failed: %s", h.err.String())
	}
	if code := h.run(t, "", "sell", "-item", "5:4"); code != 0 {
		t.Fatalf("sell failed: %s", h.err.String())
	}
	if code := h.run(t, "", "report"); code != 0 {
		t.Fatalf("report failed: %s", h.err.String())
	}
	if !strings.Contains(h.out.String(), "Bs 10.00") {
		t.Fatalf("expected the sale in the report, got %q", h.out.String())
	}
}

func TestSearchPrintsOnlyLatestQuery(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "login", "-u", "staff", "-p", "staff123"); code != 0 {
		t.Fatalf("login failed: %s", h.err.String())
	}
	if code := h.run(t, "a\nam\namox\n", "search"); code != 0 {
		t.Fatalf("search failed: %s", h.err.String())
	}
	out := h.out.String()
	if strings.Count(out, "> ") != 1 || !strings.Contains(out, "> amox") || !strings.Contains(out, "Amoxicilina") {
		t.Fatalf("expected one result block for the last query, got %q", out)
	}
}

func TestLogoutForgetsSession(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "login", "-u", "admin", "-p", "admin123"); code != 0 {
		t.Fatalf("login failed: %s", h.err.String())
	}
	if code := h.run(t, "", "whoami"); code != 0 || !strings.Contains(h.out.String(), "admin") {
		t.Fatalf("whoami failed (%d): %q %q", code, h.out.String(), h.err.String())
	}
	if code := h.run(t, "", "logout"); code != 0 {
		t.Fatalf("logout failed: %s", h.err.String())
	}
	if code := h.run(t, "", "whoami"); code != 1 {
		t.Fatalf("expected whoami to fail after logout, got %d", code)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	if code := h.run(t, "", "refund"); code != 2 {
		t.Fatalf("expected usage exit code, got %d", code)
	}
	if code := h.run(t, ""); code != 2 {
		t.Fatalf("expected usage exit code, got %d", code)
	}
}

func TestParseItem(t *testing.T) {
	cases := []struct {
		raw     string
		id      int64
		qty     int
		wantErr bool
	}{
		{raw: "3:2", id: 3, qty: 2},
		{raw: "7", id: 7, qty: 1},
		{raw: " 4 : 5 ", id: 4, qty: 5},
		{raw: "x:1", wantErr: true},
		{raw: "2:0", wantErr: true},
		{raw: "0:1", wantErr: true},
	}
	for _, tc := range cases {
		id, qty, err := parseItem(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.raw)
			}
			continue
		}
		if err != nil || id != tc.id || qty != tc.qty {
			t.Fatalf("%q: got %d, %d, %v", tc.raw, id, qty, err)
		}
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&cart.ValidationError{Message: "El carrito está vacío"}, "El carrito está vacío"},
		{&cart.InsufficientStockError{ProductName: "Jeringa", Available: 2, Requested: 3}, "Not enough stock for Jeringa: 2 available, 3 in the cart."},
		{&apiclient.APIError{Status: 401, Message: "token expired"}, "Your session is no longer valid. Run `bioclinics login` again."},
		{&apiclient.APIError{Status: 409, Message: "insufficient stock"}, "insufficient stock"},
		{fmt.Errorf("list: %w", apiclient.ErrUnavailable), "The server cannot be reached right now. Try again in a moment."},
		{errSignedOut, "You are not signed in. Run `bioclinics login` first."},
		{errors.New("boom"), "boom"},
	}
	for _, tc := range cases {
		if got := describe(tc.err); got != tc.want {
			t.Fatalf("describe(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
