package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type Store interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, sess Session) error
	Clear(ctx context.Context) error
}

// FileStore keeps the session in a small JSON object on disk, keyed the same
// way the browser keeps it.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(_ context.Context) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Session{}, nil
	}
	if err != nil {
		return Session{}, fmt.Errorf("read session file: %w", err)
	}

	var values map[string]string
	if err := json.Unmarshal(raw, &values); err != nil {
		// A mangled file is treated like a signed-out terminal.
		return Session{}, nil
	}
	return decode(values[TokenKey], values[UserKey]), nil
}

func (f *FileStore) Save(_ context.Context, sess Session) error {
	user, err := encodeUser(sess.User)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	raw, err := json.MarshalIndent(map[string]string{TokenKey: sess.Token, UserKey: user}, "", "  ")
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// RedisStore shares one session between the processes of a terminal. Keys
// are namespaced by terminal and expire with the token when exp is known.
type RedisStore struct {
	client   *redis.Client
	terminal string
}

func NewRedisStore(client *redis.Client, terminal string) *RedisStore {
	if terminal == "" {
		terminal = "default"
	}
	return &RedisStore{client: client, terminal: terminal}
}

func (r *RedisStore) key(name string) string {
	return "bioclinics:session:" + r.terminal + ":" + name
}

func (r *RedisStore) Load(ctx context.Context) (Session, error) {
	values, err := r.client.MGet(ctx, r.key(TokenKey), r.key(UserKey)).Result()
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	token, _ := values[0].(string)
	user, _ := values[1].(string)
	return decode(token, user), nil
}

func (r *RedisStore) Save(ctx context.Context, sess Session) error {
	user, err := encodeUser(sess.User)
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}

	var ttl time.Duration
	if exp, ok := sess.ExpiresAt(); ok {
		ttl = time.Until(exp)
		if ttl <= 0 {
			return r.Clear(ctx)
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(TokenKey), sess.Token, ttl)
		pipe.Set(ctx, r.key(UserKey), user, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key(TokenKey), r.key(UserKey)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
