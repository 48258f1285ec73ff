package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/roles"
	"bioclinics/backoffice/internal/store"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded schema migrations. Already-applied
// migrations are not an error.
func (s *Store) Migrate() error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}
	driver, err := migratepgx.WithInstance(s.db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

const productColumns = `id_product, name, description, price, stock, id_product_type, id_laboratory, is_active, created_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock, &p.IDProductType, &p.IDLaboratory, &p.IsActive, &p.CreatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	query := strings.TrimSpace(filter.Query)

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM products
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
	`, query).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageBounds(filter.Page, filter.Limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		ORDER BY name, id_product
		LIMIT $2 OFFSET $3
	`, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id_product = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id_product = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, description, price, stock, id_product_type, id_laboratory, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING `+productColumns,
		product.Name, product.Description, product.Price, product.Stock, product.IDProductType, product.IDLaboratory, product.IsActive,
	))
	if err != nil {
		return nil, translate(err)
	}
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, id_product_type = $5, id_laboratory = $6, is_active = $7, updated_at = now()
		WHERE id_product = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Description, product.Price, product.IDProductType, product.IDLaboratory, product.IsActive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, translate(err)
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id_product = $1`, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(res)
}

func (s *Store) ListProductTypes(ctx context.Context) ([]domain.ProductType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id_product_type, name FROM product_types ORDER BY id_product_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]domain.ProductType, 0, 8)
	for rows.Next() {
		var pt domain.ProductType
		if err := rows.Scan(&pt.ID, &pt.Name); err != nil {
			return nil, err
		}
		types = append(types, pt)
	}
	return types, rows.Err()
}

func (s *Store) GetProductType(ctx context.Context, id int64) (*domain.ProductType, error) {
	var pt domain.ProductType
	err := s.db.QueryRowContext(ctx, `SELECT id_product_type, name FROM product_types WHERE id_product_type = $1`, id).Scan(&pt.ID, &pt.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &pt, nil
}

const laboratoryColumns = `id_laboratory, name, phone, address, is_active, created_at`

func scanLaboratory(row rowScanner) (domain.Laboratory, error) {
	var lab domain.Laboratory
	err := row.Scan(&lab.ID, &lab.Name, &lab.Phone, &lab.Address, &lab.IsActive, &lab.CreatedAt)
	lab.CreatedAt = lab.CreatedAt.UTC()
	return lab, err
}

func (s *Store) ListLaboratories(ctx context.Context) ([]domain.Laboratory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+laboratoryColumns+` FROM laboratories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labs := make([]domain.Laboratory, 0, 16)
	for rows.Next() {
		lab, err := scanLaboratory(rows)
		if err != nil {
			return nil, err
		}
		labs = append(labs, lab)
	}
	return labs, rows.Err()
}

func (s *Store) GetLaboratory(ctx context.Context, id int64) (*domain.Laboratory, error) {
	lab, err := scanLaboratory(s.db.QueryRowContext(ctx, `SELECT `+laboratoryColumns+` FROM laboratories WHERE id_laboratory = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &lab, nil
}

func (s *Store) CreateLaboratory(ctx context.Context, lab domain.Laboratory) (*domain.Laboratory, error) {
	created, err := scanLaboratory(s.db.QueryRowContext(ctx, `
		INSERT INTO laboratories (name, phone, address, is_active, created_at)
		VALUES ($1,$2,$3,$4,now())
		RETURNING `+laboratoryColumns,
		lab.Name, lab.Phone, lab.Address, lab.IsActive,
	))
	if err != nil {
		return nil, translate(err)
	}
	return &created, nil
}

func (s *Store) UpdateLaboratory(ctx context.Context, lab domain.Laboratory) (*domain.Laboratory, error) {
	updated, err := scanLaboratory(s.db.QueryRowContext(ctx, `
		UPDATE laboratories SET name = $2, phone = $3, address = $4, is_active = $5
		WHERE id_laboratory = $1
		RETURNING `+laboratoryColumns,
		lab.ID, lab.Name, lab.Phone, lab.Address, lab.IsActive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, translate(err)
	}
	return &updated, nil
}

func (s *Store) DeleteLaboratory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM laboratories WHERE id_laboratory = $1`, id)
	if err != nil {
		return translate(err)
	}
	return expectAffected(res)
}

const userColumns = `id_user, id_role, name, email, username, password_hash, is_active, created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var role int
	err := row.Scan(&u.ID, &role, &u.Name, &u.Email, &u.Username, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	u.IDRole = roles.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	var active any
	if filter.IsActive != nil {
		active = *filter.IsActive
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE deleted_at IS NULL
			AND ($1 = '' OR name ILIKE '%' || $1 || '%' OR username ILIKE '%' || $1 || '%')
			AND ($2::boolean IS NULL OR is_active = $2)
		ORDER BY id_user
	`, strings.TrimSpace(filter.Name), active)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return s.findUser(ctx, `id_user = $1`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser(ctx, `lower(username) = lower($1)`, username)
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE deleted_at IS NULL AND `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	created, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (id_role, name, email, username, password_hash, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING `+userColumns,
		int(user.IDRole), user.Name, user.Email, user.Username, user.PasswordHash, user.IsActive,
	))
	if err != nil {
		return nil, translate(err)
	}
	return &created, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	updated, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET id_role = $2, name = $3, email = $4, username = $5, password_hash = $6, is_active = $7, updated_at = now()
		WHERE id_user = $1 AND deleted_at IS NULL
		RETURNING `+userColumns,
		user.ID, int(user.IDRole), user.Name, user.Email, user.Username, user.PasswordHash, user.IsActive,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, translate(err)
	}
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET deleted_at = now(), is_active = false, updated_at = now()
		WHERE id_user = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

// translate maps constraint violations onto the store sentinels.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrConflict)
		case "23503":
			if strings.HasPrefix(strings.ToUpper(pgErr.Message), "UPDATE OR DELETE") {
				return fmt.Errorf("record is still referenced: %w", store.ErrConflict)
			}
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrInvalidInput)
		case "23514":
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, store.ErrInvalidInput)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// pageBounds turns page/limit into LIMIT/OFFSET arguments. A non-positive
// limit means no limit, which Postgres spells LIMIT NULL.
func pageBounds(page int, limit int) (any, int) {
	if limit < 1 {
		return nil, 0
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// conditions accumulates WHERE clauses with positional arguments.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(c.clauses, " AND ")
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
