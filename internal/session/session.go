// Package session holds the signed-in user of the bioclinics client: the
// access token plus the user record returned by the login endpoint.
package session

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"bioclinics/backoffice/internal/roles"
)

// Storage keys. They match what the web frontend keeps in localStorage so a
// session file can be inspected side by side with a browser profile.
const (
	TokenKey = "bioclinics_token"
	UserKey  = "bioclinics_user"
)

// Session is the explicit replacement for ambient browser storage. User is
// kept as a loose map because the login response has changed shape over time.
type Session struct {
	Token string
	User  map[string]any
}

func (s Session) Authenticated() bool {
	return s.Token != ""
}

// UserID resolves the acting user id from id, id_user or userId. A missing
// or unusable value yields nil, never an error.
func (s Session) UserID() *int64 {
	for _, key := range []string{"id", "id_user", "userId"} {
		if id, ok := asInt64(s.User[key]); ok && id > 0 {
			return &id
		}
	}
	return nil
}

func (s Session) Role() roles.Role {
	for _, key := range []string{"idRole", "id_role", "role"} {
		switch v := s.User[key].(type) {
		case string:
			if role, err := roles.Parse(v); err == nil {
				return role
			}
		default:
			if id, ok := asInt64(v); ok && roles.Role(id).Valid() {
				return roles.Role(id)
			}
		}
	}
	return 0
}

func (s Session) Username() string {
	for _, key := range []string{"username", "name"} {
		if v, ok := s.User[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ExpiresAt reads the exp claim without verifying the signature; the server
// stays the authority on validity.
func (s Session) ExpiresAt() (time.Time, bool) {
	if s.Token == "" {
		return time.Time{}, false
	}
	claims := jwtlib.MapClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Expired reports whether the token is known to be past its exp claim.
// Tokens without a readable exp are treated as still valid.
func (s Session) Expired(now time.Time) bool {
	exp, ok := s.ExpiresAt()
	return ok && !now.Before(exp)
}

// decode rebuilds a session from its two stored values. A corrupt user record
// is dropped so start-up never fails on it.
func decode(token string, rawUser string) Session {
	sess := Session{Token: strings.TrimSpace(token)}
	if strings.TrimSpace(rawUser) == "" {
		return sess
	}
	var user map[string]any
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		log.Printf("[session] WARN: discarding unreadable %s: %v", UserKey, err)
		return sess
	}
	sess.User = user
	return sess
}

func encodeUser(user map[string]any) (string, error) {
	if user == nil {
		return "", nil
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}
