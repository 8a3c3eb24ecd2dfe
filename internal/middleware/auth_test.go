package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func mustToken(t *testing.T, m *AuthMiddleware, userID int64) string {
	t.Helper()

	token, err := m.Token(userID)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret", nil)

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			t.Fatalf("actor not in context")
		}
		if actor.UserID != 42 || actor.Admin {
			t.Fatalf("actor from context = %+v, want user 42 without admin", actor)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(&http.Cookie{Name: authCookieName, Value: mustToken(t, m, 42)})

	handler := m.Middleware(next)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_WithBearerAdmin(t *testing.T) {
	m := NewAuthMiddleware("test-secret", []int64{1})

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		actor, _ := ActorFromContext(r.Context())
		if actor.UserID != 1 || !actor.Admin {
			t.Fatalf("actor from context = %+v, want admin 1", actor)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+mustToken(t, m, 1))

	m.Middleware(RequireAdmin(next)).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret", nil)
	other := NewAuthMiddleware("other-secret", nil)

	tests := []struct {
		name   string
		header string
	}{
		{name: "no token", header: ""},
		{name: "foreign signature", header: "Bearer " + mustToken(t, other, 42)},
		{name: "unsigned", header: "Bearer eyJhbGciOiJub25lIn0.eyJzdWIiOiI0MiJ9."},
		{name: "garbage", header: "Bearer 42"},
		{name: "non positive id", header: "Bearer " + mustToken(t, m, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRequireAdmin_ForbidsCustomers(t *testing.T) {
	m := NewAuthMiddleware("test-secret", []int64{1})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/admin/promo", nil)
	r.Header.Set("Authorization", "Bearer "+mustToken(t, m, 7))

	m.Middleware(RequireAdmin(next)).ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestAuthMiddleware_EmptySecretIsRandom(t *testing.T) {
	a := NewAuthMiddleware("", nil)
	b := NewAuthMiddleware("", nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+mustToken(t, a, 42))
	b.Middleware(next).ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = httptest.NewRecorder()
	a.Middleware(next).ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
