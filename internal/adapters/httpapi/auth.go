package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role gates access to routes. Higher roles include the lower ones.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOps      Role = "ops"
	RoleEngineer Role = "engineer"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleViewer:   10,
	RoleOps:      20,
	RoleEngineer: 30,
	RoleAdmin:    40,
}

// Allows reports whether r may call a route that requires min.
func (r Role) Allows(min Role) bool {
	have, ok := roleRank[r]
	return ok && have >= roleRank[min]
}

type AuthConfig struct {
	// Disabled lets every request through as an anonymous admin. Local runs only.
	Disabled  bool   `yaml:"disabled"`
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Role    Role
}

// Actor is the identity recorded on alert events.
func (p Principal) Actor() string { return p.Subject + ":" + string(p.Role) }

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the caller stored by the auth middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens carrying sub and role claims.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg, secret: []byte(cfg.JWTSecret)}
}

var errMissingToken = errors.New("missing bearer token")

func (a *Authenticator) authenticate(r *http.Request) (Principal, error) {
	if a.cfg.Disabled {
		return Principal{Subject: "anonymous", Role: RoleAdmin}, nil
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return Principal{}, errMissingToken
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid token: %w", err)
	}
	if c.Subject == "" {
		return Principal{}, errors.New("token has no subject")
	}
	if _, ok := roleRank[c.Role]; !ok {
		return Principal{}, fmt.Errorf("unknown role %q", c.Role)
	}
	return Principal{Subject: c.Subject, Role: c.Role}, nil
}

// Require wraps h so only callers holding at least min reach it.
func (a *Authenticator) Require(min Role, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
			return
		}
		if !p.Role.Allows(min) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: fmt.Sprintf("role %s required", min)})
			return
		}
		h(w, r.WithContext(withPrincipal(r.Context(), p)))
	}
}

// IssueToken signs a token the Authenticator accepts.
func IssueToken(secret, issuer, subject string, role Role, ttl time.Duration) (string, error) {
	if _, ok := roleRank[role]; !ok {
		return "", fmt.Errorf("unknown role %q", role)
	}
	now := time.Now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
