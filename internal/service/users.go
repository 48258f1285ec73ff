package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/roles"
	"bioclinics/backoffice/internal/store"
)

// AllowPublicRegister lets anonymous callers sign up as staff.
func (s *Service) AllowPublicRegister(enabled bool) {
	s.publicRegister = enabled
}

func (s *Service) ListUsers(ctx context.Context, filter domain.UserFilter) ([]domain.User, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	filter.Name = strings.TrimSpace(filter.Name)
	return s.repo.ListUsers(ctx, filter)
}

func (s *Service) GetUser(ctx context.Context, id int64) (domain.User, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

// CurrentUser resolves the authenticated actor to its stored account.
func (s *Service) CurrentUser(ctx context.Context) (domain.User, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if req.IDRole == 0 {
		req.IDRole = roles.Staff
	}
	if req.IDRole == roles.Root && actor.Role != roles.Root {
		return domain.User{}, ErrAdminRequired
	}
	return s.createUser(ctx, req)
}

// Register handles sign-up. Admins may create any role they are allowed to
// assign; anonymous callers only get staff accounts, and only when public
// registration is enabled.
func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.User, error) {
	if actor, ok := ActorFromContext(ctx); ok && roles.In(actor.Role, roles.Root, roles.Admin) {
		return s.CreateUser(ctx, req)
	}
	if !s.publicRegister {
		return domain.User{}, ErrRegistrationClosed
	}
	req.IDRole = roles.Staff
	return s.createUser(ctx, req)
}

func (s *Service) createUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	user := domain.User{
		IDRole:   req.IDRole,
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Username: strings.ToLower(strings.TrimSpace(req.Username)),
		IsActive: true,
	}
	if err := validateUser(user); err != nil {
		return domain.User{}, err
	}
	if err := validatePassword(req.Password); err != nil {
		return domain.User{}, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.CreatedAt = s.now()

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	s.logAudit(ctx, "user_create", "user", created.ID, fmt.Sprintf("username=%s,role=%s", created.Username, created.IDRole))
	return *created, nil
}

func (s *Service) UpdateUser(ctx context.Context, id int64, req domain.UserUpdateRequest) (domain.User, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.User{}, err
	}
	existing, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if existing.IDRole == roles.Root && actor.Role != roles.Root {
		return domain.User{}, ErrAdminRequired
	}

	user := *existing
	if req.IDRole != nil {
		if *req.IDRole == roles.Root && actor.Role != roles.Root {
			return domain.User{}, ErrAdminRequired
		}
		if id == actor.UserID && *req.IDRole != existing.IDRole {
			return domain.User{}, invalid("you cannot change your own role")
		}
		user.IDRole = *req.IDRole
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Username != nil {
		user.Username = strings.ToLower(strings.TrimSpace(*req.Username))
	}
	if req.IsActive != nil {
		if id == actor.UserID && !*req.IsActive {
			return domain.User{}, invalid("you cannot deactivate your own account")
		}
		user.IsActive = *req.IsActive
	}
	if err := validateUser(user); err != nil {
		return domain.User{}, err
	}
	if req.Password != nil {
		if err := validatePassword(*req.Password); err != nil {
			return domain.User{}, err
		}
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	saved, err := s.repo.UpdateUser(ctx, user)
	if err != nil {
		return domain.User{}, err
	}
	s.logAudit(ctx, "user_update", "user", saved.ID, fmt.Sprintf("username=%s,role=%s,active=%t,password_changed=%t", saved.Username, saved.IDRole, saved.IsActive, req.Password != nil))
	return *saved, nil
}

func (s *Service) SetUserActive(ctx context.Context, id int64, active bool) (domain.User, error) {
	return s.UpdateUser(ctx, id, domain.UserUpdateRequest{IsActive: &active})
}

func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return err
	}
	if id == actor.UserID {
		return invalid("you cannot delete your own account")
	}
	existing, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if existing.IDRole == roles.Root && actor.Role != roles.Root {
		return ErrAdminRequired
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "user_delete", "user", id, "username="+existing.Username)
	return nil
}

// Authenticate checks credentials and returns the active account. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.User{}, ErrAccountInactive
	}
	return *user, nil
}

func validateUser(u domain.User) error {
	if !u.IDRole.Valid() {
		return invalid("role is not valid")
	}
	if u.Name == "" {
		return invalid("name is required")
	}
	if len(u.Username) < 4 {
		return invalid("username must be at least 4 characters")
	}
	if strings.ContainsAny(u.Username, " \t\r\n") {
		return invalid("username must not contain spaces")
	}
	if u.Email != "" {
		if _, err := mail.ParseAddress(u.Email); err != nil {
			return invalid("email is not valid")
		}
	}
	return nil
}

func validatePassword(password string) error {
	if len(strings.TrimSpace(password)) < 6 {
		return invalid("password must be at least 6 characters")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func CheckPassword(hash string, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
