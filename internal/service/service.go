package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"bioclinics/backoffice/internal/cache"
	"bioclinics/backoffice/internal/domain"
	"bioclinics/backoffice/internal/roles"
	"bioclinics/backoffice/internal/store"
	"bioclinics/backoffice/internal/xid"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrAdminRequired      = errors.New("admin role required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrRegistrationClosed = errors.New("public registration is disabled")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	reports        cache.ReportCache
	reportTTL      time.Duration
	publicRegister bool
	now            func() time.Time
}

func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}
	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || !actor.Role.Valid() {
		return domain.Actor{}, ErrUnauthenticated
	}
	return actor, nil
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !roles.In(actor.Role, roles.Root, roles.Admin) {
		return domain.Actor{}, ErrAdminRequired
	}
	return actor, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID any, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system"}
	}
	role := "system"
	if actor.Role.Valid() {
		role = actor.Role.String()
	}

	id := fmt.Sprint(entityID)
	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      id,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, id, err)
	}
}

func normalizePage(page int, limit int, fallbackLimit int, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = fallbackLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func trimPtr(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
