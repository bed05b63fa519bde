package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ariefcatur/go-stock-ledger/internal/identity"
)

// Authenticator verifies HS256 bearer tokens issued by the auth service and
// puts the principal on the request context.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no token provided"})
			return
		}
		p, err := a.Parse(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithPrincipal(r.Context(), p)))
	})
}

// Parse validates token and reads the principal from the first of the
// id, sub, userId or user_id claims together with role.
func (a *Authenticator) Parse(token string) (identity.Principal, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return identity.Principal{}, err
	}

	var id int64
	for _, k := range []string{"id", "sub", "userId", "user_id"} {
		if v, ok := claims[k]; ok {
			if id, err = claimInt(v); err != nil {
				return identity.Principal{}, fmt.Errorf("claim %s: %w", k, err)
			}
			break
		}
	}
	if id <= 0 {
		return identity.Principal{}, errors.New("token has no principal id")
	}
	role, _ := claims["role"].(string)
	return identity.Principal{ID: id, Role: role}, nil
}

func claimInt(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, errors.New("not an integer")
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// RequireRole admits principals holding one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := identity.FromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden, requires role: " + strings.Join(roles, "|")})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principal(ctx context.Context) identity.Principal {
	p, _ := identity.FromContext(ctx)
	return p
}
