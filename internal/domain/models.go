package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"bioclinics/backoffice/internal/roles"
)

func init() {
	// Amounts travel as bare JSON numbers, the way the frontend has always sent them.
	decimal.MarshalJSONWithoutQuotes = true
}

type Actor struct {
	UserID   int64
	Username string
	Role     roles.Role
}

type User struct {
	ID           int64      `json:"id"`
	IDRole       roles.Role `json:"idRole"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	PasswordHash string     `json:"-"`
	DeletedAt    *time.Time `json:"-"`
}

type UserCreateRequest struct {
	IDRole   roles.Role `json:"idRole"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Username string     `json:"username"`
	Password string     `json:"password"`
}

// RegisterRequest is the public sign-up payload; it shares the user shape.
type RegisterRequest = UserCreateRequest

type UserUpdateRequest struct {
	IDRole   *roles.Role `json:"idRole,omitempty"`
	Name     *string     `json:"name,omitempty"`
	Email    *string     `json:"email,omitempty"`
	Username *string     `json:"username,omitempty"`
	Password *string     `json:"password,omitempty"`
	IsActive *bool       `json:"isActive,omitempty"`
}

type UserFilter struct {
	Name     string
	IsActive *bool
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
	ExpiresAt   string `json:"expires_at"`
}

type ProductType struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Laboratory struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type LaboratoryRequest struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Address  *string `json:"address,omitempty"`
	IsActive *bool   `json:"isActive,omitempty"`
}

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	IDProductType int64           `json:"idProductType"`
	IDLaboratory  int64           `json:"idLaboratory"`
	IsActive      bool            `json:"isActive"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type ProductCreateRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	IDProductType int64           `json:"idProductType"`
	IDLaboratory  int64           `json:"idLaboratory"`
}

type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty"`
	Description   *string          `json:"description,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	IDProductType *int64           `json:"idProductType,omitempty"`
	IDLaboratory  *int64           `json:"idLaboratory,omitempty"`
	IsActive      *bool            `json:"isActive,omitempty"`
}

type ProductFilter struct {
	Query string
	Page  int
	Limit int
}

type ProductPage struct {
	Data  []Product `json:"data"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Pages int       `json:"pages"`
}

type ProductRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	TypeName string `json:"typeName,omitempty"`
}

type LaboratoryRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type UserRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// ProductInput is a stock entry. Quantity counts boxes; TotalUnits is what
// actually lands in stock.
type ProductInput struct {
	ID           int64           `json:"id"`
	IDProduct    int64           `json:"idProduct"`
	IDLaboratory int64           `json:"idLaboratory"`
	IDUser       int64           `json:"idUser"`
	Quantity     int             `json:"quantity"`
	UnitsPerBox  int             `json:"unitsPerBox"`
	TotalUnits   int             `json:"totalUnits"`
	UnitCost     decimal.Decimal `json:"unitCost"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	IsAdjustment bool            `json:"isAdjustment"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	Product      *ProductRef     `json:"product,omitempty"`
	Laboratory   *LaboratoryRef  `json:"laboratory,omitempty"`
}

type ProductInputCreateRequest struct {
	IDProduct    int64            `json:"idProduct"`
	IDLaboratory int64            `json:"idLaboratory"`
	Quantity     int              `json:"quantity"`
	UnitsPerBox  int              `json:"unitsPerBox"`
	UnitCost     decimal.Decimal  `json:"unitCost"`
	Subtotal     *decimal.Decimal `json:"subtotal,omitempty"`
	IsAdjustment bool             `json:"isAdjustment"`
	Reason       string           `json:"reason"`
}

// ProductOutput is a stock exit, either a sale line or a manual adjustment.
type ProductOutput struct {
	ID           int64           `json:"id"`
	IDProduct    int64           `json:"idProduct"`
	IDSale       *int64          `json:"idSale,omitempty"`
	IDUser       int64           `json:"idUser"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	IsAdjustment bool            `json:"isAdjustment"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	Product      *ProductRef     `json:"product,omitempty"`
	User         *UserRef        `json:"user,omitempty"`
}

type ProductOutputCreateRequest struct {
	IDProduct int64           `json:"idProduct"`
	IDSale    *int64          `json:"idSale,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Reason    string          `json:"reason,omitempty"`
}

type AdjustmentRequest struct {
	IDProduct int64           `json:"idProduct"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Reason    string          `json:"reason"`
}

// MovementFilter narrows entry and exit listings. Zero ids mean "any".
type MovementFilter struct {
	From         *time.Time
	To           *time.Time
	ProductID    int64
	LaboratoryID int64
	UserID       int64
	SaleID       int64
	IsAdjustment *bool
	Limit        int
}

type Period struct {
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type EntryTotals struct {
	Count         int             `json:"count"`
	TotalBoxes    int             `json:"totalBoxes"`
	TotalUnits    int             `json:"totalUnits"`
	TotalSubtotal decimal.Decimal `json:"totalSubtotal"`
}

type OutputTotals struct {
	Count         int             `json:"count"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalSubtotal decimal.Decimal `json:"totalSubtotal"`
}

type MovementSummary struct {
	Period  Period       `json:"period"`
	Entries EntryTotals  `json:"entries"`
	Outputs OutputTotals `json:"outputs"`
}

type ProductInputList struct {
	Data    []ProductInput  `json:"data"`
	Summary MovementSummary `json:"summary"`
}

type ProductOutputList struct {
	Data    []ProductOutput `json:"data"`
	Summary MovementSummary `json:"summary"`
}

type SaleItem struct {
	IDOutput    int64           `json:"idOutput,omitempty"`
	IDProduct   int64           `json:"idProduct"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID             int64           `json:"id"`
	IDUser         *int64          `json:"idUser"`
	Total          decimal.Decimal `json:"total"`
	Notes          string          `json:"notes,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	Items          []SaleItem      `json:"items"`
	User           *UserRef        `json:"user,omitempty"`
}

type SaleItemRequest struct {
	ProductID int64           `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// SaleRequest is the sale-creation payload. Total equals the sum of the item
// subtotals by construction on the client; the server recomputes both from
// catalog prices regardless.
type SaleRequest struct {
	UserID *int64            `json:"userId"`
	Total  decimal.Decimal   `json:"total"`
	Items  []SaleItemRequest `json:"items"`
	Notes  string            `json:"notes,omitempty"`
}

type SalesFilter struct {
	From      *time.Time
	To        *time.Time
	UserID    int64
	ProductID int64
	Page      int
	Limit     int
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type SalePage struct {
	Data       []Sale     `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type SalesReportFilter struct {
	SalesFilter
	TargetDate time.Time
}

type SalesReportSummary struct {
	DayTotal   decimal.Decimal `json:"dayTotal"`
	MonthTotal decimal.Decimal `json:"monthTotal"`
	TotalCount int             `json:"totalCount"`
	TargetDate string          `json:"targetDate"`
	MonthStart string          `json:"monthStart"`
	MonthEnd   string          `json:"monthEnd"`
	DaySales   []Sale          `json:"daySales"`
}

type SalesReport struct {
	Summary    SalesReportSummary `json:"summary"`
	Data       []Sale             `json:"data"`
	Pagination Pagination         `json:"pagination"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actorUsername"`
	ActorRole     string    `json:"actorRole"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entityType"`
	EntityID      string    `json:"entityId"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DateLayout is the calendar-date format used in filters and report periods.
const DateLayout = "2006-01-02"
