package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const adminSubjectKey = "admin.subject"

// AdminRole is the role claim required on /admin routes.
const AdminRole = "admin"

var errInvalidToken = errors.New("invalid token")

// AdminClaims are the claims accepted on admin bearer tokens.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuthOptions configures AdminAuth. Tokens are HS256; Issuer is checked
// only when set.
type AdminAuthOptions struct {
	Secret []byte
	Issuer string
}

// AdminAuth requires a bearer token signed with opts.Secret whose role claim
// is "admin". Missing or invalid tokens get 401, a valid token with another
// role gets 403. The token subject is stored for logging and rate limiting.
func AdminAuth(opts AdminAuthOptions) gin.HandlerFunc {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	parser := jwt.NewParser(parserOpts...)

	return func(c *gin.Context) {
		claims, err := parseAdminToken(parser, opts.Secret, c.GetHeader("Authorization"))
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("admin auth rejected")
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		if claims.Role != AdminRole {
			abortAuth(c, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		c.Set(adminSubjectKey, claims.Subject)
		c.Next()
	}
}

// AdminSubject returns the subject of the verified admin token, if any.
func AdminSubject(c *gin.Context) string {
	return asString(c.Value(adminSubjectKey))
}

func parseAdminToken(p *jwt.Parser, secret []byte, header string) (*AdminClaims, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" || len(secret) == 0 {
		return nil, errInvalidToken
	}
	claims := new(AdminClaims)
	tok, err := p.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer realm="admin"`)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}
