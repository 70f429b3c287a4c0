package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var adminSecret = []byte("admin-secret")

func signAdmin(t *testing.T, method jwt.SigningMethod, key any, claims AdminClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func adminClaims(role, issuer string, exp time.Time) AdminClaims {
	return AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops@example.com",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	future := time.Now().Add(time.Hour)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signAdmin(t, jwt.SigningMethodHS256, []byte("other"), adminClaims("admin", "depositd", future)), http.StatusUnauthorized},
		{"expired", "Bearer " + signAdmin(t, jwt.SigningMethodHS256, adminSecret, adminClaims("admin", "depositd", time.Now().Add(-time.Minute))), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signAdmin(t, jwt.SigningMethodHS256, adminSecret, adminClaims("admin", "elsewhere", future)), http.StatusUnauthorized},
		{"wrong alg", "Bearer " + signAdmin(t, jwt.SigningMethodHS512, adminSecret, adminClaims("admin", "depositd", future)), http.StatusUnauthorized},
		{"not admin", "Bearer " + signAdmin(t, jwt.SigningMethodHS256, adminSecret, adminClaims("support", "depositd", future)), http.StatusForbidden},
		{"ok", "Bearer " + signAdmin(t, jwt.SigningMethodHS256, adminSecret, adminClaims("admin", "depositd", future)), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(AdminAuth(AdminAuthOptions{Secret: adminSecret, Issuer: "depositd"}))
			r.GET("/admin/stats", func(c *gin.Context) {
				if AdminSubject(c) != "ops@example.com" {
					t.Fatalf("subject = %q", AdminSubject(c))
				}
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("code = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
			if tc.want == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("401 must carry WWW-Authenticate")
			}
		})
	}
}

func TestAdminAuth_NoIssuerConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AdminAuth(AdminAuthOptions{Secret: adminSecret}))
	r.GET("/admin/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+signAdmin(t, jwt.SigningMethodHS256, adminSecret, adminClaims("admin", "", time.Now().Add(time.Hour))))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
}
