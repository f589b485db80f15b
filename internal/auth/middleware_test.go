package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func newRouter(t *testing.T, v *Verifier) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", JWTMiddleware(v), func(c *gin.Context) {
		subject, ok := SubjectFrom(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, subject)
	})
	return r
}

func call(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier("  ", ""); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestMiddlewareAcceptsIssuedToken(t *testing.T) {
	v, _ := NewVerifier("secret", "picker")
	token, err := v.Issue("host-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := call(newRouter(t, v), "Bearer "+token)
	if w.Code != http.StatusOK || w.Body.String() != "host-1" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestMiddlewareRejects(t *testing.T) {
	v, _ := NewVerifier("secret", "picker")
	other, _ := NewVerifier("other-secret", "picker")
	wrongAud, _ := NewVerifier("secret", "someone-else")

	foreign, _ := other.Issue("host-1", time.Minute)
	misaddressed, _ := wrongAud.Issue("host-1", time.Minute)
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "host-1",
		Audience:  jwt.ClaimStrings{"picker"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString([]byte("secret"))
	anonymous, _ := v.Issue("", time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "host-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"no header":       "",
		"wrong scheme":    "Basic abc",
		"empty token":     "Bearer ",
		"foreign secret":  "Bearer " + foreign,
		"wrong audience":  "Bearer " + misaddressed,
		"missing subject": "Bearer " + anonymous,
		"unsigned":        "Bearer " + none,
		"expired":         "Bearer " + expired,
	}
	r := newRouter(t, v)
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			if w := call(r, header); w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
		})
	}
}
