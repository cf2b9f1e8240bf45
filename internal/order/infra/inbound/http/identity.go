package http

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/tracing"
	"github.com/damian-zhang-1027/order-service/pkg/utils"
)

const (
	buyerIDKey = "buyerUserID"
	BuyerRole  = "ROLE_BUYER_USER"
)

var errMissingRole = errors.New("missing buyer role")

// BuyerClaims: sub es el id del comprador, roles las autoridades concedidas.
type BuyerClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c BuyerClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authenticate valida el bearer HMAC, exige BuyerRole y deja el id del comprador en el contexto de gin.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Fields(c.GetHeader("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			utils.SendUnauthorized(c, "missing or invalid authorization header")
			return
		}

		buyerID, err := parseBuyerID(parts[1], secret)
		if errors.Is(err, errMissingRole) {
			utils.SendForbidden(c, "buyer role required")
			return
		}
		if err != nil {
			utils.SendUnauthorized(c, "invalid token")
			return
		}

		c.Set(buyerIDKey, buyerID)
		c.Next()
	}
}

func parseBuyerID(tokenStr string, secret []byte) (int64, error) {
	claims := &BuyerClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return 0, errors.New("invalid token")
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	if !claims.HasRole(BuyerRole) {
		return 0, errMissingRole
	}
	return id, nil
}

// BuyerID devuelve el comprador autenticado; false si el middleware no se ejecutó.
func BuyerID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(buyerIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// TraceContext extrae traceparent/baggage de la petición entrante.
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := tracing.ExtractHTTP(c.Request.Context(), c.Request.Header)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
