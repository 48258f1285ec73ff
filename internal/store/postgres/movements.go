package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/store"
)

func movementConditions(alias string, filter domain.MovementFilter) *conditions {
	conds := &conditions{}
	if filter.From != nil {
		conds.add(alias+".created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		conds.add(alias+".created_at < $%d", *filter.To)
	}
	if filter.ProductID != 0 {
		conds.add(alias+".id_product = $%d", filter.ProductID)
	}
	if filter.UserID != 0 {
		conds.add(alias+".id_user = $%d", filter.UserID)
	}
	if filter.IsAdjustment != nil {
		conds.add(alias+".is_adjustment = $%d", *filter.IsAdjustment)
	}
	return conds
}

func (s *Store) ListProductInputs(ctx context.Context, filter domain.MovementFilter) ([]domain.ProductInput, error) {
	conds := movementConditions("i", filter)
	if filter.LaboratoryID != 0 {
		conds.add("i.id_laboratory = $%d", filter.LaboratoryID)
	}
	limit, _ := pageBounds(1, filter.Limit)
	conds.args = append(conds.args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT i.id_input, i.id_product, i.id_laboratory, COALESCE(i.id_user, 0), i.quantity, i.units_per_box,
			i.total_units, i.unit_cost, i.subtotal, i.is_adjustment, i.reason, i.created_at,
			p.name, COALESCE(pt.name, ''), l.name
		FROM product_inputs i
		JOIN products p ON p.id_product = i.id_product
		LEFT JOIN product_types pt ON pt.id_product_type = p.id_product_type
		JOIN laboratories l ON l.id_laboratory = i.id_laboratory
		%s
		ORDER BY i.created_at DESC, i.id_input DESC
		LIMIT $%d
	`, conds.where(), len(conds.args)), conds.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inputs := make([]domain.ProductInput, 0, 64)
	for rows.Next() {
		var in domain.ProductInput
		product := &domain.ProductRef{}
		lab := &domain.LaboratoryRef{}
		if err := rows.Scan(
			&in.ID, &in.IDProduct, &in.IDLaboratory, &in.IDUser, &in.Quantity, &in.UnitsPerBox,
			&in.TotalUnits, &in.UnitCost, &in.Subtotal, &in.IsAdjustment, &in.Reason, &in.CreatedAt,
			&product.Name, &product.TypeName, &lab.Name,
		); err != nil {
			return nil, err
		}
		product.ID = in.IDProduct
		lab.ID = in.IDLaboratory
		in.Product = product
		in.Laboratory = lab
		in.CreatedAt = in.CreatedAt.UTC()
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

func (s *Store) CreateProductInput(ctx context.Context, input domain.ProductInput) (*domain.ProductInput, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	product := &domain.ProductRef{ID: input.IDProduct}
	err = pgTx.QueryRowContext(ctx, `
		UPDATE products p SET stock = p.stock + $2, updated_at = now()
		WHERE p.id_product = $1
		RETURNING p.name, COALESCE((SELECT name FROM product_types WHERE id_product_type = p.id_product_type), '')
	`, input.IDProduct, input.TotalUnits).Scan(&product.Name, &product.TypeName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unknown product %d: %w", input.IDProduct, store.ErrInvalidInput)
		}
		return nil, err
	}

	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO product_inputs (id_product, id_laboratory, id_user, quantity, units_per_box, total_units,
			unit_cost, subtotal, is_adjustment, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		RETURNING id_input, created_at
	`, input.IDProduct, input.IDLaboratory, nullID(input.IDUser), input.Quantity, input.UnitsPerBox, input.TotalUnits,
		input.UnitCost, input.Subtotal, input.IsAdjustment, input.Reason,
	).Scan(&input.ID, &input.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}

	lab := &domain.LaboratoryRef{ID: input.IDLaboratory}
	if err := pgTx.QueryRowContext(ctx, `SELECT name FROM laboratories WHERE id_laboratory = $1`, input.IDLaboratory).Scan(&lab.Name); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	input.CreatedAt = input.CreatedAt.UTC()
	input.Product = product
	input.Laboratory = lab
	return &input, nil
}

func (s *Store) ListProductOutputs(ctx context.Context, filter domain.MovementFilter) ([]domain.ProductOutput, error) {
	conds := movementConditions("o", filter)
	if filter.LaboratoryID != 0 {
		conds.add("p.id_laboratory = $%d", filter.LaboratoryID)
	}
	if filter.SaleID != 0 {
		conds.add("o.id_sale = $%d", filter.SaleID)
	}
	limit, _ := pageBounds(1, filter.Limit)
	conds.args = append(conds.args, limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT o.id_output, o.id_product, o.id_sale, COALESCE(o.id_user, 0), o.quantity, o.unit_price, o.subtotal,
			o.is_adjustment, o.reason, o.created_at,
			p.name, COALESCE(pt.name, ''), u.name, u.username
		FROM product_outputs o
		JOIN products p ON p.id_product = o.id_product
		LEFT JOIN product_types pt ON pt.id_product_type = p.id_product_type
		LEFT JOIN users u ON u.id_user = o.id_user
		%s
		ORDER BY o.created_at DESC, o.id_output DESC
		LIMIT $%d
	`, conds.where(), len(conds.args)), conds.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outputs := make([]domain.ProductOutput, 0, 64)
	for rows.Next() {
		var out domain.ProductOutput
		var saleID sql.NullInt64
		var userName, userUsername sql.NullString
		product := &domain.ProductRef{}
		if err := rows.Scan(
			&out.ID, &out.IDProduct, &saleID, &out.IDUser, &out.Quantity, &out.UnitPrice, &out.Subtotal,
			&out.IsAdjustment, &out.Reason, &out.CreatedAt,
			&product.Name, &product.TypeName, &userName, &userUsername,
		); err != nil {
			return nil, err
		}
		if saleID.Valid {
			id := saleID.Int64
			out.IDSale = &id
		}
		if userName.Valid {
			out.User = &domain.UserRef{ID: out.IDUser, Name: userName.String, Username: userUsername.String}
		}
		product.ID = out.IDProduct
		out.Product = product
		out.CreatedAt = out.CreatedAt.UTC()
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

func (s *Store) CreateProductOutput(ctx context.Context, output domain.ProductOutput) (*domain.ProductOutput, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	product := &domain.ProductRef{ID: output.IDProduct}
	var stock int
	err = pgTx.QueryRowContext(ctx, `
		SELECT p.name, COALESCE(pt.name, ''), p.stock
		FROM products p
		LEFT JOIN product_types pt ON pt.id_product_type = p.id_product_type
		WHERE p.id_product = $1
		FOR UPDATE OF p
	`, output.IDProduct).Scan(&product.Name, &product.TypeName, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unknown product %d: %w", output.IDProduct, store.ErrInvalidInput)
		}
		return nil, err
	}
	if stock < output.Quantity {
		return nil, &store.StockError{ProductID: output.IDProduct, ProductName: product.Name, Available: stock, Requested: output.Quantity}
	}

	if _, err := pgTx.ExecContext(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id_product = $1`, output.IDProduct, output.Quantity); err != nil {
		return nil, err
	}
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO product_outputs (id_product, id_sale, id_user, quantity, unit_price, subtotal, is_adjustment, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		RETURNING id_output, created_at
	`, output.IDProduct, output.IDSale, nullID(output.IDUser), output.Quantity, output.UnitPrice, output.Subtotal,
		output.IsAdjustment, output.Reason,
	).Scan(&output.ID, &output.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	output.CreatedAt = output.CreatedAt.UTC()
	output.Product = product
	return &output, nil
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id_sale FROM sales WHERE idempotency_key = $1`, key).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.GetSale(ctx, id)
}

const saleColumns = `s.id_sale, s.id_user, s.total, s.notes, COALESCE(s.idempotency_key, ''), s.created_at, u.name, u.username`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var userID sql.NullInt64
	var userName, userUsername sql.NullString
	err := row.Scan(&sale.ID, &userID, &sale.Total, &sale.Notes, &sale.IdempotencyKey, &sale.CreatedAt, &userName, &userUsername)
	if userID.Valid {
		id := userID.Int64
		sale.IDUser = &id
		if userName.Valid {
			sale.User = &domain.UserRef{ID: id, Name: userName.String, Username: userUsername.String}
		}
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales s LEFT JOIN users u ON u.id_user = s.id_user
		WHERE s.id_sale = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	items, err := s.saleItems(ctx, []int64{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SalesFilter) ([]domain.Sale, int, error) {
	conds := &conditions{}
	if filter.From != nil {
		conds.add("s.created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		conds.add("s.created_at < $%d", *filter.To)
	}
	if filter.UserID != 0 {
		conds.add("s.id_user = $%d", filter.UserID)
	}
	if filter.ProductID != 0 {
		conds.add("EXISTS (SELECT 1 FROM product_outputs o WHERE o.id_sale = s.id_sale AND o.id_product = $%d)", filter.ProductID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sales s `+conds.where(), conds.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filter.Page, filter.Limit)
	args := append(append([]any{}, conds.args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+saleColumns+`
		FROM sales s LEFT JOIN users u ON u.id_user = s.id_user
		%s
		ORDER BY s.created_at DESC, s.id_sale DESC
		LIMIT $%d OFFSET $%d
	`, conds.where(), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	ids := make([]int64, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	items, err := s.saleItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, total, nil
}

func (s *Store) saleItems(ctx context.Context, saleIDs []int64) (map[int64][]domain.SaleItem, error) {
	result := make(map[int64][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id_sale, o.id_output, o.id_product, p.name, o.quantity, o.unit_price, o.subtotal
		FROM product_outputs o
		JOIN products p ON p.id_product = o.id_product
		WHERE o.id_sale = ANY($1)
		ORDER BY o.id_output
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID int64
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.IDOutput, &item.IDProduct, &item.ProductName, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		result[saleID] = append(result[saleID], item)
	}
	return result, rows.Err()
}

// CreateSale locks the involved product rows, checks stock for every line,
// then writes the sale and one output per line in a single transaction.
// A concurrent insert with the same idempotency key returns that sale with
// replayed set.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, bool, error) {
	if len(sale.Items) == 0 {
		return nil, false, store.ErrInvalidInput
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = pgTx.Rollback() }()

	ids := make([]int64, 0, len(sale.Items))
	requested := make(map[int64]int, len(sale.Items))
	for _, item := range sale.Items {
		if item.Quantity < 1 {
			return nil, false, store.ErrInvalidInput
		}
		if _, seen := requested[item.IDProduct]; !seen {
			ids = append(ids, item.IDProduct)
		}
		requested[item.IDProduct] += item.Quantity
	}

	rows, err := pgTx.QueryContext(ctx, `
		SELECT id_product, name, price, stock, is_active
		FROM products
		WHERE id_product = ANY($1)
		ORDER BY id_product
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, false, err
	}
	products := make(map[int64]domain.Product, len(ids))
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.IsActive); err != nil {
			_ = rows.Close()
			return nil, false, err
		}
		products[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, false, err
	}
	_ = rows.Close()

	for _, id := range ids {
		product, ok := products[id]
		if !ok || !product.IsActive {
			return nil, false, fmt.Errorf("product %d unavailable: %w", id, store.ErrInvalidInput)
		}
		if requested[id] > product.Stock {
			return nil, false, &store.StockError{ProductID: id, ProductName: product.Name, Available: product.Stock, Requested: requested[id]}
		}
	}

	var idem any
	if sale.IdempotencyKey != "" {
		idem = sale.IdempotencyKey
	}
	err = pgTx.QueryRowContext(ctx, `
		INSERT INTO sales (id_user, total, notes, idempotency_key, created_at)
		VALUES ($1, 0, $2, $3, now())
		RETURNING id_sale, created_at
	`, sale.IDUser, sale.Notes, idem).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) && sale.IdempotencyKey != "" {
			_ = pgTx.Rollback()
			existing, err := s.FindSaleByIdempotency(ctx, sale.IdempotencyKey)
			if err != nil {
				return nil, false, err
			}
			return existing, true, nil
		}
		return nil, false, translate(err)
	}

	var userID any
	if sale.IDUser != nil {
		userID = *sale.IDUser
	}
	total := decimal.Zero
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		product := products[item.IDProduct]
		subtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if _, err := pgTx.ExecContext(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id_product = $1`, product.ID, item.Quantity); err != nil {
			return nil, false, err
		}
		var outputID int64
		if err := pgTx.QueryRowContext(ctx, `
			INSERT INTO product_outputs (id_product, id_sale, id_user, quantity, unit_price, subtotal, is_adjustment, reason, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,false,'',$7)
			RETURNING id_output
		`, product.ID, sale.ID, userID, item.Quantity, product.Price, subtotal, sale.CreatedAt).Scan(&outputID); err != nil {
			return nil, false, err
		}
		items = append(items, domain.SaleItem{
			IDOutput:    outputID,
			IDProduct:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   product.Price,
			Subtotal:    subtotal,
		})
		total = total.Add(subtotal)
	}

	if _, err := pgTx.ExecContext(ctx, `UPDATE sales SET total = $2 WHERE id_sale = $1`, sale.ID, total); err != nil {
		return nil, false, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, false, err
	}

	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.Items = items
	sale.Total = total
	return &sale, false, nil
}
