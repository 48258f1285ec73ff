package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Older frontends post sales and adjustments with snake_case or duplicated
// keys. The request types below accept every spelling seen in the wild and
// prefer the camelCase one when several are present.

func (r *SaleItemRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProductID   *int64           `json:"productId"`
		IDProduct   *int64           `json:"idProduct"`
		IDProductSC *int64           `json:"id_product"`
		Quantity    int              `json:"quantity"`
		UnitPrice   *decimal.Decimal `json:"unitPrice"`
		UnitPriceSC *decimal.Decimal `json:"unit_price"`
		Subtotal    decimal.Decimal  `json:"subtotal"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = SaleItemRequest{
		ProductID: firstInt64(raw.ProductID, raw.IDProduct, raw.IDProductSC),
		Quantity:  raw.Quantity,
		UnitPrice: firstDecimal(raw.UnitPrice, raw.UnitPriceSC),
		Subtotal:  raw.Subtotal,
	}
	return nil
}

func (r *SaleRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserID   *int64            `json:"userId"`
		IDUser   *int64            `json:"idUser"`
		IDUserSC *int64            `json:"id_user"`
		Total    decimal.Decimal   `json:"total"`
		Items    []SaleItemRequest `json:"items"`
		Notes    string            `json:"notes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = SaleRequest{Total: raw.Total, Items: raw.Items, Notes: raw.Notes}
	for _, id := range []*int64{raw.UserID, raw.IDUser, raw.IDUserSC} {
		if id != nil {
			r.UserID = id
			break
		}
	}
	return nil
}

func (r *AdjustmentRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		IDProduct   *int64           `json:"idProduct"`
		IDProductSC *int64           `json:"id_product"`
		Quantity    int              `json:"quantity"`
		UnitPrice   *decimal.Decimal `json:"unitPrice"`
		UnitPriceSC *decimal.Decimal `json:"unit_price"`
		Reason      string           `json:"reason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = AdjustmentRequest{
		IDProduct: firstInt64(raw.IDProduct, raw.IDProductSC),
		Quantity:  raw.Quantity,
		UnitPrice: firstDecimal(raw.UnitPrice, raw.UnitPriceSC),
		Reason:    raw.Reason,
	}
	return nil
}

func firstInt64(values ...*int64) int64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstDecimal(values ...*decimal.Decimal) decimal.Decimal {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return decimal.Zero
}
