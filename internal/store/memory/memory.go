package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/roles"
	"bioclinics/backoffice/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	products     map[int64]domain.Product
	productTypes map[int64]domain.ProductType
	laboratories map[int64]domain.Laboratory
	inputs       []domain.ProductInput
	outputs      []domain.ProductOutput
	salesByID    map[int64]*domain.Sale
	salesByIdem  map[string]*domain.Sale
	users        map[int64]domain.User
	auditLogs    []domain.AuditLog
	seq          map[string]int64
}

// New returns an empty store. Most callers want NewSeeded.
func New() *Store {
	return &Store{
		products:     make(map[int64]domain.Product),
		productTypes: make(map[int64]domain.ProductType),
		laboratories: make(map[int64]domain.Laboratory),
		inputs:       make([]domain.ProductInput, 0, 64),
		outputs:      make([]domain.ProductOutput, 0, 64),
		salesByID:    make(map[int64]*domain.Sale),
		salesByIdem:  make(map[string]*domain.Sale),
		users:        make(map[int64]domain.User),
		auditLogs:    make([]domain.AuditLog, 0, 128),
		seq:          make(map[string]int64),
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from SEED_ROOT_PASSWORD,
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset values fall back to dev defaults.
func seedUsers(now time.Time) []domain.User {
	rootPwd := envOr("SEED_ROOT_PASSWORD", "root12345")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	users := make([]domain.User, 0, 3)
	for _, u := range []struct {
		username string
		name     string
		password string
		role     roles.Role
	}{
		{"root", "Root", rootPwd, roles.Root},
		{"admin", "Administrador", adminPwd, roles.Admin},
		{"staff", "Farmacia Turno A", staffPwd, roles.Staff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users = append(users, domain.User{
			IDRole:       u.role,
			Name:         u.name,
			Email:        u.username + "@bioclinics.local",
			Username:     u.username,
			IsActive:     true,
			CreatedAt:    now,
			PasswordHash: string(hash),
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, name := range []string{"Medicamento", "Insumo médico", "Cosmético", "Suplemento"} {
		id := s.next("product_type")
		s.productTypes[id] = domain.ProductType{ID: id, Name: name}
	}
	for _, lab := range []domain.Laboratory{
		{Name: "Laboratorios Bagó", Phone: "+591 2 2770000", Address: "La Paz"},
		{Name: "Laboratorios Inti", Phone: "+591 2 2411000", Address: "La Paz"},
		{Name: "Droguería Vita", Phone: "+591 3 3360000", Address: "Santa Cruz"},
	} {
		lab.ID = s.next("laboratory")
		lab.IsActive = true
		lab.CreatedAt = now
		s.laboratories[lab.ID] = lab
	}
	for _, p := range []domain.Product{
		{Name: "Paracetamol 500mg x10", Price: decimal.RequireFromString("8.50"), Stock: 120, IDProductType: 1, IDLaboratory: 2},
		{Name: "Ibuprofeno 400mg x10", Price: decimal.RequireFromString("12.00"), Stock: 80, IDProductType: 1, IDLaboratory: 1},
		{Name: "Amoxicilina 500mg x12", Price: decimal.RequireFromString("35.00"), Stock: 40, IDProductType: 1, IDLaboratory: 1},
		{Name: "Alcohol en gel 250ml", Price: decimal.RequireFromString("15.00"), Stock: 60, IDProductType: 2, IDLaboratory: 3},
		{Name: "Jeringa 5ml", Price: decimal.RequireFromString("2.50"), Stock: 300, IDProductType: 2, IDLaboratory: 3},
		{Name: "Protector solar FPS50", Price: decimal.RequireFromString("95.00"), Stock: 15, IDProductType: 3, IDLaboratory: 3},
		{Name: "Vitamina C 1g x10", Price: decimal.RequireFromString("22.00"), Stock: 50, IDProductType: 4, IDLaboratory: 2},
		{Name: "Loratadina 10mg x10", Price: decimal.RequireFromString("10.00"), Stock: 0, IDProductType: 1, IDLaboratory: 2},
	} {
		p.ID = s.next("product")
		p.IsActive = true
		p.CreatedAt = now
		s.products[p.ID] = p
	}
	for _, u := range seedUsers(now) {
		u.ID = s.next("user")
		s.users[u.ID] = u
	}
	return s
}

func (s *Store) next(kind string) int64 {
	s.seq[kind]++
	return s.seq[kind]
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	matched := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		matched = append(matched, p)
	}
	slices.SortFunc(matched, func(a, b domain.Product) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmpInt64(a.ID, b.ID)
	})

	return paginate(matched, filter.Page, filter.Limit), len(matched), nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProductRefs(product); err != nil {
		return nil, err
	}
	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrConflict
		}
	}

	product.ID = s.next("product")
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.checkProductRefs(product); err != nil {
		return nil, err
	}
	// Stock only moves through entries, exits and sales.
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, in := range s.inputs {
		if in.IDProduct == id {
			return fmt.Errorf("product %d has stock movements: %w", id, store.ErrConflict)
		}
	}
	for _, out := range s.outputs {
		if out.IDProduct == id {
			return fmt.Errorf("product %d has stock movements: %w", id, store.ErrConflict)
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) checkProductRefs(product domain.Product) error {
	if _, ok := s.productTypes[product.IDProductType]; !ok {
		return fmt.Errorf("unknown product type %d: %w", product.IDProductType, store.ErrInvalidInput)
	}
	if _, ok := s.laboratories[product.IDLaboratory]; !ok {
		return fmt.Errorf("unknown laboratory %d: %w", product.IDLaboratory, store.ErrInvalidInput)
	}
	return nil
}

func (s *Store) ListProductTypes(_ context.Context) ([]domain.ProductType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]domain.ProductType, 0, len(s.productTypes))
	for _, pt := range s.productTypes {
		types = append(types, pt)
	}
	slices.SortFunc(types, func(a, b domain.ProductType) int { return cmpInt64(a.ID, b.ID) })
	return types, nil
}

func (s *Store) GetProductType(_ context.Context, id int64) (*domain.ProductType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pt, ok := s.productTypes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &pt, nil
}

func (s *Store) ListLaboratories(_ context.Context) ([]domain.Laboratory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labs := make([]domain.Laboratory, 0, len(s.laboratories))
	for _, lab := range s.laboratories {
		labs = append(labs, lab)
	}
	slices.SortFunc(labs, func(a, b domain.Laboratory) int { return strings.Compare(a.Name, b.Name) })
	return labs, nil
}

func (s *Store) GetLaboratory(_ context.Context, id int64) (*domain.Laboratory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lab, ok := s.laboratories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &lab, nil
}

func (s *Store) CreateLaboratory(_ context.Context, lab domain.Laboratory) (*domain.Laboratory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.laboratories {
		if strings.EqualFold(existing.Name, lab.Name) {
			return nil, store.ErrConflict
		}
	}
	lab.ID = s.next("laboratory")
	if lab.CreatedAt.IsZero() {
		lab.CreatedAt = time.Now().UTC()
	}
	s.laboratories[lab.ID] = lab
	created := lab
	return &created, nil
}

func (s *Store) UpdateLaboratory(_ context.Context, lab domain.Laboratory) (*domain.Laboratory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.laboratories[lab.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	lab.CreatedAt = existing.CreatedAt
	s.laboratories[lab.ID] = lab
	updated := lab
	return &updated, nil
}

func (s *Store) DeleteLaboratory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.laboratories[id]; !ok {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.IDLaboratory == id {
			return fmt.Errorf("laboratory %d still has products: %w", id, store.ErrConflict)
		}
	}
	delete(s.laboratories, id)
	return nil
}

func (s *Store) ListProductInputs(_ context.Context, filter domain.MovementFilter) ([]domain.ProductInput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductInput, 0, len(s.inputs))
	for _, in := range s.inputs {
		if !inRange(in.CreatedAt, filter) {
			continue
		}
		if filter.ProductID != 0 && in.IDProduct != filter.ProductID {
			continue
		}
		if filter.LaboratoryID != 0 && in.IDLaboratory != filter.LaboratoryID {
			continue
		}
		if filter.UserID != 0 && in.IDUser != filter.UserID {
			continue
		}
		if filter.IsAdjustment != nil && in.IsAdjustment != *filter.IsAdjustment {
			continue
		}
		result = append(result, s.decorateInput(in))
	}
	slices.SortFunc(result, func(a, b domain.ProductInput) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpInt64(b.ID, a.ID)
	})
	return limitSlice(result, filter.Limit), nil
}

func (s *Store) CreateProductInput(_ context.Context, input domain.ProductInput) (*domain.ProductInput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[input.IDProduct]
	if !ok {
		return nil, fmt.Errorf("unknown product %d: %w", input.IDProduct, store.ErrInvalidInput)
	}
	if _, ok := s.laboratories[input.IDLaboratory]; !ok {
		return nil, fmt.Errorf("unknown laboratory %d: %w", input.IDLaboratory, store.ErrInvalidInput)
	}

	input.ID = s.next("input")
	if input.CreatedAt.IsZero() {
		input.CreatedAt = time.Now().UTC()
	}
	product.Stock += input.TotalUnits
	s.products[product.ID] = product
	s.inputs = append(s.inputs, input)

	created := s.decorateInput(input)
	return &created, nil
}

func (s *Store) ListProductOutputs(_ context.Context, filter domain.MovementFilter) ([]domain.ProductOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ProductOutput, 0, len(s.outputs))
	for _, out := range s.outputs {
		if !inRange(out.CreatedAt, filter) {
			continue
		}
		if filter.ProductID != 0 && out.IDProduct != filter.ProductID {
			continue
		}
		if filter.LaboratoryID != 0 && s.products[out.IDProduct].IDLaboratory != filter.LaboratoryID {
			continue
		}
		if filter.UserID != 0 && out.IDUser != filter.UserID {
			continue
		}
		if filter.SaleID != 0 && (out.IDSale == nil || *out.IDSale != filter.SaleID) {
			continue
		}
		if filter.IsAdjustment != nil && out.IsAdjustment != *filter.IsAdjustment {
			continue
		}
		result = append(result, s.decorateOutput(out))
	}
	slices.SortFunc(result, func(a, b domain.ProductOutput) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpInt64(b.ID, a.ID)
	})
	return limitSlice(result, filter.Limit), nil
}

func (s *Store) CreateProductOutput(_ context.Context, output domain.ProductOutput) (*domain.ProductOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[output.IDProduct]
	if !ok {
		return nil, fmt.Errorf("unknown product %d: %w", output.IDProduct, store.ErrInvalidInput)
	}
	if product.Stock < output.Quantity {
		return nil, &store.StockError{ProductID: product.ID, ProductName: product.Name, Available: product.Stock, Requested: output.Quantity}
	}

	output.ID = s.next("output")
	if output.CreatedAt.IsZero() {
		output.CreatedAt = time.Now().UTC()
	}
	product.Stock -= output.Quantity
	s.products[product.ID] = product
	s.outputs = append(s.outputs, output)

	created := s.decorateOutput(output)
	return &created, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SalesFilter) ([]domain.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.CreatedAt.Before(*filter.To) {
			continue
		}
		if filter.UserID != 0 && (sale.IDUser == nil || *sale.IDUser != filter.UserID) {
			continue
		}
		if filter.ProductID != 0 && !saleHasProduct(sale, filter.ProductID) {
			continue
		}
		matched = append(matched, *cloneSale(sale))
	}
	slices.SortFunc(matched, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpInt64(b.ID, a.ID)
	})
	return paginate(matched, filter.Page, filter.Limit), len(matched), nil
}

// CreateSale checks every line against current stock, prices it from the
// catalog and records one output per line. Nothing is written unless every
// line fits.
func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.IdempotencyKey != "" {
		if existing, ok := s.salesByIdem[sale.IdempotencyKey]; ok {
			return cloneSale(existing), true, nil
		}
	}
	if len(sale.Items) == 0 {
		return nil, false, store.ErrInvalidInput
	}

	requested := make(map[int64]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, false, store.ErrInvalidInput
		}
		product, ok := s.products[item.IDProduct]
		if !ok || !product.IsActive {
			return nil, false, fmt.Errorf("product %d unavailable: %w", item.IDProduct, store.ErrInvalidInput)
		}
		requested[item.IDProduct] += item.Quantity
		if requested[item.IDProduct] > product.Stock {
			return nil, false, &store.StockError{ProductID: product.ID, ProductName: product.Name, Available: product.Stock, Requested: requested[item.IDProduct]}
		}
	}

	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.ID = s.next("sale")
	saleID := sale.ID
	var userID int64
	if sale.IDUser != nil {
		userID = *sale.IDUser
	}

	total := decimal.Zero
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		product := s.products[item.IDProduct]
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		output := domain.ProductOutput{
			ID:        s.next("output"),
			IDProduct: product.ID,
			IDSale:    &saleID,
			IDUser:    userID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
			Subtotal:  subtotal,
			CreatedAt: sale.CreatedAt,
		}
		product.Stock -= item.Quantity
		s.products[product.ID] = product
		s.outputs = append(s.outputs, output)

		items = append(items, domain.SaleItem{
			IDOutput:    output.ID,
			IDProduct:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    subtotal,
		})
		total = total.Add(subtotal)
	}
	sale.Items = items
	sale.Total = total
	if u, ok := s.users[userID]; ok {
		sale.User = &domain.UserRef{ID: u.ID, Name: u.Name, Username: u.Username}
	}

	stored := cloneSale(&sale)
	s.salesByID[sale.ID] = stored
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = stored
	}
	return cloneSale(stored), false, nil
}

func (s *Store) ListUsers(_ context.Context, filter domain.UserFilter) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := strings.ToLower(strings.TrimSpace(filter.Name))
	users := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if u.DeletedAt != nil {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(u.Name), name) && !strings.Contains(strings.ToLower(u.Username), name) {
			continue
		}
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.User) int { return cmpInt64(a.ID, b.ID) })
	return users, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.DeletedAt == nil && strings.EqualFold(u.Username, username) {
			found := u
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.DeletedAt != nil {
			continue
		}
		if strings.EqualFold(existing.Username, user.Username) || (user.Email != "" && strings.EqualFold(existing.Email, user.Email)) {
			return nil, store.ErrConflict
		}
	}
	user.ID = s.next("user")
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok || existing.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	for _, other := range s.users {
		if other.ID == user.ID || other.DeletedAt != nil {
			continue
		}
		if strings.EqualFold(other.Username, user.Username) || (user.Email != "" && strings.EqualFold(other.Email, user.Email)) {
			return nil, store.ErrConflict
		}
	}
	user.CreatedAt = existing.CreatedAt
	s.users[user.ID] = user
	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	u.DeletedAt = &now
	u.IsActive = false
	s.users[id] = u
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

// AuditLogs returns a copy of the recorded audit trail, oldest first.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.auditLogs)
}

func (s *Store) decorateInput(in domain.ProductInput) domain.ProductInput {
	if p, ok := s.products[in.IDProduct]; ok {
		in.Product = &domain.ProductRef{ID: p.ID, Name: p.Name, TypeName: s.productTypes[p.IDProductType].Name}
	}
	if lab, ok := s.laboratories[in.IDLaboratory]; ok {
		in.Laboratory = &domain.LaboratoryRef{ID: lab.ID, Name: lab.Name}
	}
	return in
}

func (s *Store) decorateOutput(out domain.ProductOutput) domain.ProductOutput {
	if p, ok := s.products[out.IDProduct]; ok {
		out.Product = &domain.ProductRef{ID: p.ID, Name: p.Name, TypeName: s.productTypes[p.IDProductType].Name}
	}
	if u, ok := s.users[out.IDUser]; ok {
		out.User = &domain.UserRef{ID: u.ID, Name: u.Name, Username: u.Username}
	}
	return out
}

func inRange(at time.Time, filter domain.MovementFilter) bool {
	if filter.From != nil && at.Before(*filter.From) {
		return false
	}
	if filter.To != nil && !at.Before(*filter.To) {
		return false
	}
	return true
}

func saleHasProduct(sale *domain.Sale, productID int64) bool {
	for _, item := range sale.Items {
		if item.IDProduct == productID {
			return true
		}
	}
	return false
}

func paginate[T any](items []T, page int, limit int) []T {
	if limit < 1 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := min(start+limit, len(items))
	return items[start:end]
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Items = slices.Clone(src.Items)
	if src.IDUser != nil {
		id := *src.IDUser
		dst.IDUser = &id
	}
	if src.User != nil {
		user := *src.User
		dst.User = &user
	}
	return &dst
}
