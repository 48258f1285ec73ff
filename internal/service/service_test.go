package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bioclinics/backoffice/internal/cache"
	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/roles"
	"bioclinics/backoffice/internal/store"
	"bioclinics/backoffice/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopReportCache{}, time.Minute), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: 2, Username: "admin", Role: roles.Admin})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: 3, Username: "staff", Role: roles.Staff})
}

func rootCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: 1, Username: "root", Role: roles.Root})
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCreateSaleDecrementsStockAndPricesFromCatalog(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	sale, replay, err := svc.CreateSale(ctx, domain.SaleRequest{
		Total: dec("17"),
		Items: []domain.SaleItemRequest{{ProductID: 1, Quantity: 2, UnitPrice: dec("1")}},
	}, "idem-1")
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if replay {
		t.Fatalf("first sale must not be a replay")
	}
	if !sale.Total.Equal(dec("17")) {
		t.Fatalf("expected total 17 from catalog price, got %s", sale.Total)
	}
	if sale.IDUser == nil || *sale.IDUser != 3 {
		t.Fatalf("expected sale to default to the acting user, got %v", sale.IDUser)
	}

	product, err := svc.GetProduct(ctx, 1)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.Stock != 118 {
		t.Fatalf("expected stock 118, got %d", product.Stock)
	}
}

func TestCreateSaleIdempotentReplay(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()
	req := domain.SaleRequest{Items: []domain.SaleItemRequest{{ProductID: 2, Quantity: 1}}}

	first, _, err := svc.CreateSale(ctx, req, "idem-replay")
	if err != nil {
		t.Fatalf("first sale failed: %v", err)
	}
	second, replay, err := svc.CreateSale(ctx, req, "idem-replay")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !replay || second.ID != first.ID {
		t.Fatalf("expected replay of sale %d, got %d (replay=%t)", first.ID, second.ID, replay)
	}

	product, _ := svc.GetProduct(ctx, 2)
	if product.Stock != 79 {
		t.Fatalf("expected a single decrement, stock=%d", product.Stock)
	}
}

func TestCreateSaleAttribution(t *testing.T) {
	svc, _ := newTestService()
	one := []domain.SaleItemRequest{{ProductID: 5, Quantity: 1}}
	id := func(v int64) *int64 { return &v }

	if _, _, err := svc.CreateSale(staffCtx(), domain.SaleRequest{UserID: id(1), Items: one}, ""); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected staff to be refused selling as another user, got %v", err)
	}
	if _, _, err := svc.CreateSale(adminCtx(), domain.SaleRequest{UserID: id(999), Items: one}, ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown user to be rejected, got %v", err)
	}

	if _, err := svc.SetUserActive(rootCtx(), 3, false); err != nil {
		t.Fatalf("deactivate staff: %v", err)
	}
	if _, _, err := svc.CreateSale(adminCtx(), domain.SaleRequest{UserID: id(3), Items: one}, ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected inactive user to be rejected, got %v", err)
	}

	sale, _, err := svc.CreateSale(rootCtx(), domain.SaleRequest{UserID: id(2), Items: one}, "")
	if err != nil {
		t.Fatalf("root recording for admin: %v", err)
	}
	if sale.IDUser == nil || *sale.IDUser != 2 {
		t.Fatalf("expected sale under user 2, got %+v", sale.IDUser)
	}
}

// racingRepo hides existing idempotency keys from the service's pre-check,
// the way a concurrent retry sees the table before the first insert commits.
type racingRepo struct {
	*memory.Store
}

func (racingRepo) FindSaleByIdempotency(context.Context, string) (*domain.Sale, error) {
	return nil, store.ErrNotFound
}

func TestCreateSaleReplayDetectedInsideStore(t *testing.T) {
	svc := New(racingRepo{memory.NewSeeded()}, cache.NoopReportCache{}, time.Minute)
	ctx := staffCtx()
	req := domain.SaleRequest{Items: []domain.SaleItemRequest{{ProductID: 2, Quantity: 1}}}

	first, replay, err := svc.CreateSale(ctx, req, "idem-race")
	if err != nil || replay {
		t.Fatalf("first sale: replay=%t err=%v", replay, err)
	}
	second, replay, err := svc.CreateSale(ctx, req, "idem-race")
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}
	if !replay || second.ID != first.ID {
		t.Fatalf("expected replay of sale %d, got %d (replay=%t)", first.ID, second.ID, replay)
	}

	product, _ := svc.GetProduct(ctx, 2)
	if product.Stock != 79 {
		t.Fatalf("expected a single decrement, stock=%d", product.Stock)
	}
}

func TestCreateSaleRejectsInsufficientStock(t *testing.T) {
	svc, _ := newTestService()

	_, _, err := svc.CreateSale(staffCtx(), domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: 6, Quantity: 10},
			{ProductID: 6, Quantity: 10},
		},
	}, "")
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	var stockErr *store.StockError
	if !errors.As(err, &stockErr) || stockErr.ProductName != "Protector solar FPS50" {
		t.Fatalf("expected stock error naming the product, got %v", err)
	}

	product, _ := svc.GetProduct(staffCtx(), 6)
	if product.Stock != 15 {
		t.Fatalf("failed sale must not touch stock, got %d", product.Stock)
	}
}

func TestCreateSaleValidatesItems(t *testing.T) {
	svc, _ := newTestService()

	cases := []domain.SaleRequest{
		{},
		{Items: []domain.SaleItemRequest{{ProductID: 0, Quantity: 1}}},
		{Items: []domain.SaleItemRequest{{ProductID: 1, Quantity: 0}}},
	}
	for i, req := range cases {
		if _, _, err := svc.CreateSale(staffCtx(), req, ""); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}

	if _, _, err := svc.CreateSale(context.Background(), cases[0], ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
}

func TestProductInputRecomputesTotalsAndAddsStock(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()
	clientSubtotal := dec("1")

	input, err := svc.CreateProductInput(ctx, domain.ProductInputCreateRequest{
		IDProduct:    8,
		IDLaboratory: 2,
		Quantity:     3,
		UnitsPerBox:  10,
		UnitCost:     dec("0.75"),
		Subtotal:     &clientSubtotal,
	})
	if err != nil {
		t.Fatalf("create input failed: %v", err)
	}
	if input.TotalUnits != 30 || !input.Subtotal.Equal(dec("22.5")) {
		t.Fatalf("unexpected totals units=%d subtotal=%s", input.TotalUnits, input.Subtotal)
	}
	if input.IDUser != 3 {
		t.Fatalf("expected input attributed to actor, got %d", input.IDUser)
	}

	product, _ := svc.GetProduct(ctx, 8)
	if product.Stock != 30 {
		t.Fatalf("expected stock 30, got %d", product.Stock)
	}
}

func TestProductInputDefaultsUnitsPerBox(t *testing.T) {
	svc, _ := newTestService()

	input, err := svc.CreateProductInput(staffCtx(), domain.ProductInputCreateRequest{
		IDProduct: 1, IDLaboratory: 2, Quantity: 4, UnitCost: dec("2"),
	})
	if err != nil {
		t.Fatalf("create input failed: %v", err)
	}
	if input.UnitsPerBox != 1 || input.TotalUnits != 4 {
		t.Fatalf("expected units per box 1, got %d/%d", input.UnitsPerBox, input.TotalUnits)
	}
}

func TestAdjustmentRequiresReason(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	if _, err := svc.CreateAdjustment(ctx, domain.AdjustmentRequest{IDProduct: 1, Quantity: 2, Reason: "  "}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input without reason, got %v", err)
	}

	out, err := svc.CreateAdjustment(ctx, domain.AdjustmentRequest{IDProduct: 1, Quantity: 2, Reason: "vencido"})
	if err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	if !out.IsAdjustment || !out.Subtotal.IsZero() || out.Reason != "vencido" {
		t.Fatalf("unexpected adjustment %+v", out)
	}
}

func TestProductOutputFallsBackToCatalogPrice(t *testing.T) {
	svc, _ := newTestService()

	out, err := svc.CreateProductOutput(staffCtx(), domain.ProductOutputCreateRequest{IDProduct: 2, Quantity: 3})
	if err != nil {
		t.Fatalf("create output failed: %v", err)
	}
	if !out.UnitPrice.Equal(dec("12")) || !out.Subtotal.Equal(dec("36")) {
		t.Fatalf("unexpected price %s subtotal %s", out.UnitPrice, out.Subtotal)
	}

	if _, err := svc.CreateProductOutput(staffCtx(), domain.ProductOutputCreateRequest{IDProduct: 8, Quantity: 1}); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestListProductInputsSummarizesPeriod(t *testing.T) {
	svc, _ := newTestService()
	ctx := staffCtx()

	for _, qty := range []int{2, 3} {
		if _, err := svc.CreateProductInput(ctx, domain.ProductInputCreateRequest{
			IDProduct: 1, IDLaboratory: 2, Quantity: qty, UnitsPerBox: 10, UnitCost: dec("1.5"),
		}); err != nil {
			t.Fatalf("create input failed: %v", err)
		}
	}
	if _, _, err := svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleItemRequest{{ProductID: 1, Quantity: 4}}}, ""); err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	today := startOfDay(time.Now())
	tomorrow := today.AddDate(0, 0, 1)
	list, err := svc.ListProductInputs(ctx, domain.MovementFilter{From: &today, To: &tomorrow, Limit: 1})
	if err != nil {
		t.Fatalf("list inputs failed: %v", err)
	}
	if len(list.Data) != 1 {
		t.Fatalf("expected limit to cap data at 1, got %d", len(list.Data))
	}
	s := list.Summary
	if s.Entries.Count != 2 || s.Entries.TotalBoxes != 5 || s.Entries.TotalUnits != 50 || !s.Entries.TotalSubtotal.Equal(dec("75")) {
		t.Fatalf("unexpected entry totals %+v", s.Entries)
	}
	if s.Outputs.Count != 1 || s.Outputs.TotalQuantity != 4 || !s.Outputs.TotalSubtotal.Equal(dec("34")) {
		t.Fatalf("unexpected output totals %+v", s.Outputs)
	}
	if s.Period.StartDate != today.Format(domain.DateLayout) || s.Period.EndDate != today.Format(domain.DateLayout) {
		t.Fatalf("unexpected period %+v", s.Period)
	}
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	svc, repo := newTestService()

	req := domain.ProductCreateRequest{Name: "Omeprazol 20mg", Price: dec("18"), IDProductType: 1, IDLaboratory: 1}
	if _, err := svc.CreateProduct(staffCtx(), req); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("expected admin required, got %v", err)
	}

	created, err := svc.CreateProduct(adminCtx(), req)
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if !created.IsActive {
		t.Fatalf("new products start active")
	}

	deactivated, err := svc.SetProductActive(adminCtx(), created.ID, false)
	if err != nil || deactivated.IsActive {
		t.Fatalf("deactivate failed: %v %+v", err, deactivated)
	}

	if _, err := svc.CreateProduct(adminCtx(), req); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate name conflict, got %v", err)
	}

	logs := repo.AuditLogs()
	if len(logs) < 2 || logs[0].Action != "product_create" || logs[0].ActorUsername != "admin" {
		t.Fatalf("expected audit trail, got %+v", logs)
	}
}

func TestListProductsPaginates(t *testing.T) {
	svc, _ := newTestService()

	page, err := svc.ListProducts(staffCtx(), domain.ProductFilter{Limit: 3, Page: 2})
	if err != nil {
		t.Fatalf("list products failed: %v", err)
	}
	if page.Total != 8 || page.Pages != 3 || len(page.Data) != 3 {
		t.Fatalf("unexpected page %d/%d with %d rows", page.Page, page.Pages, len(page.Data))
	}

	found, err := svc.ListProducts(staffCtx(), domain.ProductFilter{Query: "PARACET"})
	if err != nil || len(found.Data) != 1 || found.Data[0].ID != 1 {
		t.Fatalf("expected one match for paracetamol, got %+v (%v)", found.Data, err)
	}
}

func TestDeleteLaboratoryInUseConflicts(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.DeleteLaboratory(adminCtx(), 1); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict deleting a referenced laboratory, got %v", err)
	}
}

type countingReportCache struct {
	cache.NoopReportCache
	stored      map[string]*domain.SalesReport
	invalidated int
}

func (c *countingReportCache) Get(_ context.Context, key string) (*domain.SalesReport, bool, error) {
	r, ok := c.stored[key]
	return r, ok, nil
}

func (c *countingReportCache) Set(_ context.Context, key string, value *domain.SalesReport, _ time.Duration) error {
	c.stored[key] = value
	return nil
}

func (c *countingReportCache) Invalidate(_ context.Context) error {
	c.invalidated++
	c.stored = map[string]*domain.SalesReport{}
	return nil
}

func TestSalesReportTotalsAndCache(t *testing.T) {
	reports := &countingReportCache{stored: map[string]*domain.SalesReport{}}
	svc := New(memory.NewSeeded(), reports, time.Minute)
	fixed := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := staffCtx()

	if _, _, err := svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleItemRequest{{ProductID: 1, Quantity: 2}}}, ""); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	svc.now = func() time.Time { return fixed.AddDate(0, 0, -3) }
	if _, _, err := svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleItemRequest{{ProductID: 2, Quantity: 1}}}, ""); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	svc.now = func() time.Time { return fixed }

	report, err := svc.SalesReport(ctx, domain.SalesReportFilter{TargetDate: fixed})
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	sum := report.Summary
	if !sum.DayTotal.Equal(dec("17")) || !sum.MonthTotal.Equal(dec("29")) {
		t.Fatalf("unexpected totals day=%s month=%s", sum.DayTotal, sum.MonthTotal)
	}
	if sum.TargetDate != "2026-03-14" || sum.MonthStart != "2026-03-01" || sum.MonthEnd != "2026-03-31" {
		t.Fatalf("unexpected dates %+v", sum)
	}
	if sum.TotalCount != 2 || len(report.Data) != 2 || len(sum.DaySales) != 1 || report.Pagination.Limit != 15 {
		t.Fatalf("unexpected report shape %+v", report.Pagination)
	}
	if len(reports.stored) != 1 {
		t.Fatalf("expected report to be cached")
	}

	if _, _, err := svc.CreateSale(ctx, domain.SaleRequest{Items: []domain.SaleItemRequest{{ProductID: 5, Quantity: 4}}}, ""); err != nil {
		t.Fatalf("sale failed: %v", err)
	}
	if reports.invalidated != 3 || len(reports.stored) != 0 {
		t.Fatalf("expected every sale to invalidate cached reports, got %d", reports.invalidated)
	}
}

func TestUserManagementRules(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.ListUsers(staffCtx(), domain.UserFilter{}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("staff must not list users, got %v", err)
	}
	if _, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{IDRole: roles.Root, Name: "Other Root", Username: "root2", Password: "secret123"}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("admin must not create root, got %v", err)
	}
	if _, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{Name: "Ana", Username: "a b", Password: "secret123"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid username, got %v", err)
	}

	created, err := svc.CreateUser(adminCtx(), domain.UserCreateRequest{Name: "Ana Quispe", Email: "ana@bioclinics.bo", Username: "AnaQ", Password: "secret123"})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "anaq" || created.IDRole != roles.Staff {
		t.Fatalf("unexpected user %+v", created)
	}

	if _, err := svc.Authenticate(context.Background(), "anaq", "secret123"); err != nil {
		t.Fatalf("new user should authenticate: %v", err)
	}
	if _, err := svc.SetUserActive(adminCtx(), created.ID, false); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "anaq", "secret123"); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected inactive account, got %v", err)
	}

	if _, err := svc.SetUserActive(adminCtx(), 2, false); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("admin must not deactivate themselves, got %v", err)
	}
	if err := svc.DeleteUser(adminCtx(), 1); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("admin must not delete root, got %v", err)
	}
	if err := svc.DeleteUser(rootCtx(), created.ID); err != nil {
		t.Fatalf("root delete failed: %v", err)
	}
	if _, err := svc.GetUser(rootCtx(), created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("deleted user should be gone, got %v", err)
	}
}

func TestRegisterPolicy(t *testing.T) {
	svc, _ := newTestService()
	req := domain.RegisterRequest{IDRole: roles.Admin, Name: "Luis", Username: "luism", Password: "secret123"}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("expected closed registration, got %v", err)
	}

	svc.AllowPublicRegister(true)
	user, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.IDRole != roles.Staff {
		t.Fatalf("anonymous sign-up must yield staff, got %s", user.IDRole)
	}

	req.Username = "luisadmin"
	promoted, err := svc.Register(adminCtx(), req)
	if err != nil || promoted.IDRole != roles.Admin {
		t.Fatalf("admin should register admins: %v %+v", err, promoted)
	}
}

func TestAuthenticateRejectsBadPassword(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Authenticate(context.Background(), "admin", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody", "admin123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	user, err := svc.Authenticate(context.Background(), " ADMIN ", "admin123")
	if err != nil || user.ID != 2 {
		t.Fatalf("expected seeded admin, got %+v (%v)", user, err)
	}
}
