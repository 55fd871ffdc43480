package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"salesflow/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Context keys set by RequireRole
const (
	ContextUserID    = "userID"
	ContextUserRole  = "userRole"
	ContextCompanyID = "companyID"
)

const accessTokenCookie = "access_token"

// Claims carried in access tokens. Subject holds the user id.
type Claims struct {
	Role      string `json:"role"`
	CompanyID string `json:"company_id"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller extracted from a token
type Identity struct {
	UserID    uuid.UUID
	CompanyID uuid.UUID
	Role      string
}

// Authenticator issues and verifies access tokens
type Authenticator struct {
	secret        []byte
	tokenTTL      time.Duration
	secureCookies bool
}

func NewAuthenticator(secret string, tokenTTL time.Duration, secureCookies bool) *Authenticator {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), tokenTTL: tokenTTL, secureCookies: secureCookies}
}

// IssueToken signs an HS256 access token for the identity
func (a *Authenticator) IssueToken(id Identity) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(a.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:      id.Role,
		CompanyID: id.CompanyID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies a token and returns the identity it carries
func (a *Authenticator) Parse(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !token.Valid {
		return Identity{}, errors.New("token is not valid")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject: %w", err)
	}
	companyID, err := uuid.Parse(claims.CompanyID)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid company_id: %w", err)
	}
	if claims.Role == "" {
		return Identity{}, errors.New("role not found in token")
	}
	return Identity{UserID: userID, CompanyID: companyID, Role: claims.Role}, nil
}

// SetTokenCookie stores the access token as an HttpOnly cookie
func (a *Authenticator) SetTokenCookie(c *gin.Context, token string) {
	a.setCookie(c, token, int(a.tokenTTL.Seconds()))
}

// ClearTokenCookie removes the access token cookie
func (a *Authenticator) ClearTokenCookie(c *gin.Context) {
	a.setCookie(c, "", -1)
}

func (a *Authenticator) setCookie(c *gin.Context, value string, maxAge int) {
	// cross-origin frontends need SameSite=None, which browsers only accept with Secure
	sameSite := http.SameSiteLaxMode
	if a.secureCookies {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(accessTokenCookie, value, maxAge, "/", "", a.secureCookies, true)
}

func tokenFromRequest(c *gin.Context) (string, error) {
	if token, err := c.Cookie(accessTokenCookie); err == nil && token != "" {
		return token, nil
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New("Authorization is missing")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("Invalid authorization format. Expected 'Bearer <token>'")
	}
	return strings.TrimSpace(parts[1]), nil
}

// RequireRole validates the access token and checks the caller's role.
// With no roles listed any authenticated user passes.
func (a *Authenticator) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, err.Error()))
			return
		}

		id, err := a.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token: "+err.Error()))
			return
		}

		if len(allowedRoles) > 0 && !containsRole(allowedRoles, id.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Set(ContextUserID, id.UserID)
		c.Set(ContextUserRole, id.Role)
		c.Set(ContextCompanyID, id.CompanyID)

		c.Next()
	}
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// IdentityFrom returns the identity stored by RequireRole
func IdentityFrom(c *gin.Context) (Identity, bool) {
	userID, ok1 := c.Get(ContextUserID)
	companyID, ok2 := c.Get(ContextCompanyID)
	role := c.GetString(ContextUserRole)
	if !ok1 || !ok2 || role == "" {
		return Identity{}, false
	}
	uid, ok1 := userID.(uuid.UUID)
	cid, ok2 := companyID.(uuid.UUID)
	if !ok1 || !ok2 {
		return Identity{}, false
	}
	return Identity{UserID: uid, CompanyID: cid, Role: role}, true
}
