package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// Manager owns the in-process copy of the session and keeps it in step with
// its Store.
type Manager struct {
	mu      sync.RWMutex
	store   Store
	current Session
	now     func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Restore loads the persisted session. An expired token is cleared and a
// storage failure degrades to a signed-out session.
func (m *Manager) Restore(ctx context.Context) Session {
	sess, err := m.store.Load(ctx)
	if err != nil {
		log.Printf("[session] WARN: could not restore session: %v", err)
		sess = Session{}
	}
	if sess.Expired(m.now()) {
		log.Printf("[session] stored token expired, signing out")
		if err := m.store.Clear(ctx); err != nil {
			log.Printf("[session] WARN: could not clear expired session: %v", err)
		}
		sess = Session{}
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return sess
}

func (m *Manager) Login(ctx context.Context, token string, user map[string]any) error {
	sess := Session{Token: token, User: user}
	if err := m.store.Save(ctx, sess); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	return nil
}

func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = Session{}
	m.mu.Unlock()
	return m.store.Clear(ctx)
}

func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Token satisfies apiclient.TokenSource.
func (m *Manager) Token() string {
	return m.Current().Token
}

// UserID satisfies cart.UserResolver.
func (m *Manager) UserID() *int64 {
	return m.Current().UserID()
}
