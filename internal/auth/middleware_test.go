package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libdesk/libdesk/internal/entities"
	"github.com/libdesk/libdesk/internal/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupAuthenticator(t *testing.T) (*Authenticator, *TokenCodec) {
	t.Helper()
	codec := NewTokenCodec("test-secret", time.Hour)
	return NewAuthenticator(codec, NewMemoryDenylist(), logging.Discard()), codec
}

func issue(t *testing.T, codec *TokenCodec, uid string, identity entities.IdentityType) string {
	t.Helper()
	token, err := codec.Issue(uid, "Name "+uid, identity)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return token
}

func newRouter(a *Authenticator) *gin.Engine {
	router := gin.New()
	router.Use(a.Handler())
	router.GET("/open", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": GetUserID(c), "authenticated": IsAuthenticated(c)})
	})
	router.GET("/must-auth", a.RequireAuth(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/admin", a.RequirePrivilege(entities.IdentityAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/super", a.RequirePrivilege(entities.IdentitySuperAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/logout", a.RequireAuth(), func(c *gin.Context) {
		if err := a.Revoke(c); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusOK)
	})
	return router
}

func do(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAuthenticator_OpenRouteStaysAnonymous(t *testing.T) {
	a, _ := setupAuthenticator(t)
	router := newRouter(a)

	rr := do(router, http.MethodGet, "/open", "garbage")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200 on open route with bad token, got %d", rr.Code)
	}
}

func TestAuthenticator_RequireAuth(t *testing.T) {
	a, codec := setupAuthenticator(t)
	router := newRouter(a)

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"invalid token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + issue(t, codec, "u1", entities.IdentityStudent), http.StatusOK},
		{"lowercase scheme", "bearer " + issue(t, codec, "u1", entities.IdentityStudent), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/must-auth", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d", tt.wantCode, rr.Code)
			}
		})
	}
}

func TestAuthenticator_RequirePrivilege(t *testing.T) {
	a, codec := setupAuthenticator(t)
	router := newRouter(a)

	student := issue(t, codec, "s1", entities.IdentityStudent)
	admin := issue(t, codec, "a1", entities.IdentityAdmin)
	root := issue(t, codec, "r1", entities.IdentitySuperAdmin)

	cases := []struct {
		path     string
		token    string
		wantCode int
	}{
		{"/admin", "", http.StatusUnauthorized},
		{"/admin", student, http.StatusForbidden},
		{"/admin", admin, http.StatusOK},
		{"/super", admin, http.StatusForbidden},
		{"/super", root, http.StatusOK},
	}

	for _, tc := range cases {
		rr := do(router, http.MethodGet, tc.path, tc.token)
		if rr.Code != tc.wantCode {
			t.Errorf("GET %s: expected %d, got %d", tc.path, tc.wantCode, rr.Code)
		}
	}
}

func TestAuthenticator_RevokedTokenIsRejected(t *testing.T) {
	a, codec := setupAuthenticator(t)
	router := newRouter(a)
	token := issue(t, codec, "u1", entities.IdentityStudent)

	if rr := do(router, http.MethodPost, "/logout", token); rr.Code != http.StatusOK {
		t.Fatalf("Expected logout to succeed, got %d", rr.Code)
	}
	if rr := do(router, http.MethodGet, "/must-auth", token); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for revoked token, got %d", rr.Code)
	}
}

func TestCanActFor(t *testing.T) {
	a, codec := setupAuthenticator(t)
	router := gin.New()
	router.Use(a.Handler())
	router.GET("/users/:id", func(c *gin.Context) {
		if !CanActFor(c, c.Param("id")) {
			c.Status(http.StatusForbidden)
			return
		}
		c.Status(http.StatusOK)
	})

	student := issue(t, codec, "u1", entities.IdentityStudent)
	admin := issue(t, codec, "a1", entities.IdentityAdmin)

	if rr := do(router, http.MethodGet, "/users/u1", student); rr.Code != http.StatusOK {
		t.Errorf("Expected self access, got %d", rr.Code)
	}
	if rr := do(router, http.MethodGet, "/users/u2", student); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for other user, got %d", rr.Code)
	}
	if rr := do(router, http.MethodGet, "/users/u2", admin); rr.Code != http.StatusOK {
		t.Errorf("Expected admin access, got %d", rr.Code)
	}
	if rr := do(router, http.MethodGet, "/users/u1", ""); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for anonymous caller, got %d", rr.Code)
	}
}

func TestCanManage(t *testing.T) {
	tests := []struct {
		caller, target entities.IdentityType
		want           bool
	}{
		{entities.IdentityAdmin, entities.IdentityStudent, true},
		{entities.IdentityAdmin, entities.IdentityStaff, true},
		{entities.IdentityAdmin, entities.IdentityAdmin, false},
		{entities.IdentityAdmin, entities.IdentitySuperAdmin, false},
		{entities.IdentitySeniorAdmin, entities.IdentityAdmin, false},
		{entities.IdentitySuperAdmin, entities.IdentitySeniorAdmin, true},
		{entities.IdentitySuperAdmin, entities.IdentitySuperAdmin, false},
	}

	for _, tt := range tests {
		if got := CanManage(tt.caller, tt.target); got != tt.want {
			t.Errorf("CanManage(%d, %d) = %v, want %v", tt.caller, tt.target, got, tt.want)
		}
	}
}
