/*
auth.go - Login and bearer-token authentication

PURPOSE:
  Exchanges email+password for a signed JWT and turns the bearer token on
  later requests back into an engine.Actor. The domain packages never see
  tokens or passwords; they only receive the Actor.

TOKEN SHAPE:
  HS256, subject = user id, with role and optional factory_id claims.
  Tokens expire after the configured TTL; there is no refresh flow, clients
  just log in again.
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fibreline/piecework-engine/engine"
)

// Auth issues and verifies bearer tokens.
type Auth struct {
	Users  engine.UserStore
	Secret []byte
	TTL    time.Duration

	Now func() time.Time
}

func NewAuth(users engine.UserStore, secret []byte, ttl time.Duration) *Auth {
	return &Auth{Users: users, Secret: secret, TTL: ttl, Now: time.Now}
}

type authClaims struct {
	Role      string `json:"role"`
	FactoryID string `json:"factory_id,omitempty"`
	jwt.RegisteredClaims
}

// Login exchanges credentials for a token.
// POST /api/auth/login
func (a *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	user, err := a.Users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up user", err)
		return
	}
	// Same response for unknown email and wrong password.
	if user == nil || !user.Active ||
		bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	now := a.Now().UTC()
	claims := authClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.TTL)),
		},
	}
	if user.FactoryID != nil {
		claims.FactoryID = user.FactoryID.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to sign token", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     signed,
		ExpiresAt: now.Add(a.TTL).Format(time.RFC3339),
		User: UserDTO{
			ID:        user.ID.String(),
			Email:     user.Email,
			Role:      string(user.Role),
			FactoryID: uuidPtrString(user.FactoryID),
		},
	})
}

type actorContextKey struct{}

// Middleware verifies the bearer token and stores the Actor on the request
// context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
			return
		}

		var claims authClaims
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.Secret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "Invalid token", nil)
			return
		}

		actor, err := actorFromClaims(claims)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), actorContextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromClaims(claims authClaims) (engine.Actor, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return engine.Actor{}, err
	}
	role := engine.Role(claims.Role)
	if !role.Valid() {
		return engine.Actor{}, jwt.ErrTokenInvalidClaims
	}
	actor := engine.Actor{ID: id, Role: role}
	if claims.FactoryID != "" {
		factoryID, err := uuid.Parse(claims.FactoryID)
		if err != nil {
			return engine.Actor{}, err
		}
		actor.FactoryID = &factoryID
	}
	return actor, nil
}

// actorFrom pulls the authenticated Actor from the request context. Only
// valid behind Auth.Middleware.
func actorFrom(r *http.Request) engine.Actor {
	actor, _ := r.Context().Value(actorContextKey{}).(engine.Actor)
	return actor
}

// requireAdmin writes a 403 and returns false unless the actor is an admin.
func requireAdmin(w http.ResponseWriter, r *http.Request) (engine.Actor, bool) {
	actor := actorFrom(r)
	if !actor.IsAdmin() {
		writeError(w, http.StatusForbidden, "Admin access required", nil)
		return actor, false
	}
	return actor, true
}

func uuidPtrString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
