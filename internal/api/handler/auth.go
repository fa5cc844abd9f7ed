package handler

import (
	"chatgogo/realtime/internal/config"
	"chatgogo/realtime/internal/models"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const ctxUserID = "user_id"

var ErrMissingSubject = errors.New("token has no subject")

// Claims is the handshake token payload: the user id in sub plus a display name.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates HS256 tokens.
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(cfg config.JWTConfig) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTTL,
		now:    time.Now,
	}
}

// Issue генерує JWT для користувача
func (a *Authenticator) Issue(userID, name string) (string, error) {
	now := a.now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// tokenFromRequest reads "Authorization: Bearer <token>", then ?token= for
// browser websocket clients that cannot set headers.
func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}

// RequireAuth aborts with 401 unless the request carries a valid token.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := h.auth.Validate(tokenFromRequest(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		c.Set(ctxUserID, claims.Subject)
		c.Next()
	}
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// IssueToken видає JWT. Без user_id створюється новий анонімний користувач.
func (h *Handler) IssueToken(c *gin.Context) {
	ctx := c.Request.Context()

	if userID := c.Query("user_id"); userID != "" {
		user, err := h.store.GetUserByID(ctx, userID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.respondToken(c, user.ID, user.Name)
		return
	}

	user := &models.User{ID: uuid.NewString(), Name: c.DefaultQuery("name", "anonymous")}
	if err := h.store.SaveUser(ctx, user); err != nil {
		h.log.Error("failed to save user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	h.respondToken(c, user.ID, user.Name)
}

func (h *Handler) respondToken(c *gin.Context, userID, name string) {
	token, err := h.auth.Issue(userID, name)
	if err != nil {
		h.log.Error("failed to sign token", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token, UserID: userID, Name: name})
}
