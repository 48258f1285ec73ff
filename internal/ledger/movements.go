package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is a stock entry after field mapping. Boxes times UnitsPerBox gives
// TotalUnits unless the server sent TotalUnits itself.
type Entry struct {
	ID             string
	ProductID      int64
	ProductName    string
	TypeName       string
	LaboratoryID   int64
	LaboratoryName string
	Boxes          float64
	UnitsPerBox    float64
	TotalUnits     float64
	UnitCost       decimal.Decimal
	Subtotal       decimal.Decimal
	IsAdjustment   bool
	Reason         string
	CreatedAt      time.Time
	HasDate        bool
}

// Exit is a stock exit after field mapping, either a sale line or an
// adjustment.
type Exit struct {
	ID              string
	SaleID          int64
	ProductID       int64
	ProductName     string
	TypeName        string
	Quantity        float64
	UnitPrice       decimal.Decimal
	Subtotal        decimal.Decimal
	IsAdjustment    bool
	Reason          string
	ResponsibleName string
	CreatedAt       time.Time
	HasDate         bool
}

func MapEntry(r Record) Entry {
	product := r.object("product", "productInfo")
	lab := r.object("laboratory", "laboratoryInfo")

	unitsPerBox := r.number("unitsPerBox", "units_per_box", "units")
	if unitsPerBox == 0 {
		unitsPerBox = 1
	}
	boxes := r.number("quantityBoxes", "quantity")
	totalUnits := boxes * unitsPerBox
	if v, ok := r.first("totalUnits", "total_units"); ok {
		totalUnits = ToNumber(v)
	}
	unitCost := r.money("unitCost", "unit_cost")
	subtotal := unitCost.Mul(decimal.NewFromFloat(totalUnits))
	if v, ok := r.first("subtotal"); ok {
		subtotal = ToDecimal(v)
	}

	e := Entry{
		ID:             r.str("id", "id_input", "idInput"),
		ProductID:      firstID(product, []string{"id", "id_product"}, r, []string{"idProduct", "id_product", "productId"}),
		ProductName:    firstString(product, []string{"name"}, r, []string{"product_name", "productName"}, "Producto"),
		TypeName:       firstString(product, []string{"typeName"}, r, []string{"type_name", "typeName"}, ""),
		LaboratoryID:   firstID(lab, []string{"id", "id_laboratory"}, r, []string{"idLaboratory", "laboratoryId", "id_laboratory"}),
		LaboratoryName: firstString(lab, []string{"name"}, r, []string{"laboratory_name", "laboratoryName"}, "Sin laboratorio"),
		Boxes:          boxes,
		UnitsPerBox:    unitsPerBox,
		TotalUnits:     totalUnits,
		UnitCost:       unitCost,
		Subtotal:       subtotal,
		IsAdjustment:   r.flag("isAdjustment", "is_adjustment"),
		Reason:         r.str("reason"),
	}
	if v, ok := r.first("createdAt", "created_at", "date"); ok {
		e.CreatedAt, e.HasDate = ParseDate(v)
	}
	return e
}

func MapExit(r Record) Exit {
	product := r.object("product", "productInfo")

	quantity := r.number("quantity", "qty")
	unitPrice := r.money("unitPrice", "unit_price")
	if _, ok := r.first("unitPrice", "unit_price"); !ok && product != nil {
		unitPrice = product.money("price")
	}
	subtotal := unitPrice.Mul(decimal.NewFromFloat(quantity))
	if v, ok := r.first("subtotal", "total", "amount"); ok {
		subtotal = ToDecimal(v)
	}

	x := Exit{
		ID:           r.str("id_output", "id", "outputId"),
		SaleID:       r.id("idSale", "id_sale", "sale_id"),
		ProductID:    firstID(product, []string{"id", "id_product"}, r, []string{"idProduct", "id_product", "productId"}),
		ProductName:  firstString(product, []string{"name"}, r, []string{"product_name", "productName"}, "Producto"),
		TypeName:     firstString(product, []string{"typeName"}, r, []string{"typeName", "type_name"}, ""),
		Quantity:     quantity,
		UnitPrice:    unitPrice,
		Subtotal:     subtotal,
		IsAdjustment: r.flag("isAdjustment", "is_adjustment"),
		Reason:       r.str("reason"),
	}
	responsible := r.object("responsible", "user")
	if responsible == nil {
		if sale := r.object("sale"); sale != nil {
			responsible = sale.object("user")
		}
	}
	if responsible != nil {
		x.ResponsibleName = responsible.str("name", "username", "userName")
	}
	if v, ok := r.first("createdAt", "created_at", "date"); ok {
		x.CreatedAt, x.HasDate = ParseDate(v)
	}
	return x
}

func MapEntries(records []Record) []Entry {
	out := make([]Entry, 0, len(records))
	for _, r := range records {
		out = append(out, MapEntry(r))
	}
	return out
}

func MapExits(records []Record) []Exit {
	out := make([]Exit, 0, len(records))
	for _, r := range records {
		out = append(out, MapExit(r))
	}
	return out
}

// SortByRecency orders movements newest first. Movements without a readable
// date sort as the Unix epoch, which puts them last. Ties keep their order.
func SortByRecency[T any](items []T, at func(T) (time.Time, bool)) {
	epoch := time.Unix(0, 0)
	key := func(item T) time.Time {
		if t, ok := at(item); ok {
			return t
		}
		return epoch
	}
	sort.SliceStable(items, func(i, j int) bool {
		return key(items[i]).After(key(items[j]))
	})
}

func EntryTime(e Entry) (time.Time, bool) { return e.CreatedAt, e.HasDate }

func ExitTime(x Exit) (time.Time, bool) { return x.CreatedAt, x.HasDate }

func firstID(nested Record, nestedKeys []string, r Record, keys []string) int64 {
	if nested != nil {
		if id := nested.id(nestedKeys...); id != 0 {
			return id
		}
	}
	return r.id(keys...)
}

func firstString(nested Record, nestedKeys []string, r Record, keys []string, fallback string) string {
	if nested != nil {
		if s := nested.str(nestedKeys...); s != "" {
			return s
		}
	}
	if s := r.str(keys...); s != "" {
		return s
	}
	return fallback
}
