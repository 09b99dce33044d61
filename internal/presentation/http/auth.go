package httppresentation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
	errNotAdmin     = errors.New("admin role required")
)

// Claims are the bearer token claims. The subject is the numeric user id.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	UserID int64
	Email  string
	Admin  bool
}

type identityKey struct{}

func contextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the caller stored by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret    []byte
	adminRole string
	now       func() time.Time
}

func NewAuthenticator(secret, adminRole string) *Authenticator {
	if adminRole == "" {
		adminRole = "admin"
	}
	return &Authenticator{secret: []byte(secret), adminRole: adminRole, now: time.Now}
}

// Issue signs a token for userID. Used by the token command and tests.
func (a *Authenticator) Issue(userID int64, email string, admin bool, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if admin {
		claims.Roles = []string{a.adminRole}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses a raw token into an Identity.
func (a *Authenticator) Verify(raw string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, fmt.Errorf("%w: subject %q", errInvalidToken, claims.Subject)
	}
	id := Identity{UserID: userID, Email: claims.Email}
	for _, r := range claims.Roles {
		if r == a.adminRole {
			id.Admin = true
		}
	}
	return id, nil
}

// Authenticate rejects requests without a valid bearer token and, when admin is set,
// callers without the admin role.
func (a *Authenticator) Authenticate(admin bool, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, errMissingToken)
			return
		}
		id, err := a.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, errInvalidToken)
			return
		}
		if admin && !id.Admin {
			writeError(w, http.StatusForbidden, errNotAdmin)
			return
		}
		next(w, r.WithContext(contextWithIdentity(r.Context(), id)), ps)
	}
}
