package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mmeshcher/sales-system/internal/model"
	"github.com/mmeshcher/sales-system/internal/repository"
)

type stubUsers struct {
	user *model.User
}

func (s *stubUsers) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, repository.ErrUserNotFound
	}
	return s.user, nil
}

func TestTokenRoundTrip(t *testing.T) {
	a := NewAuthMiddleware("test-secret", nil)

	token := a.IssueToken(42)

	id, ok := a.ParseToken(token)
	if !ok {
		t.Fatalf("token must be valid")
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
}

func TestParseToken_Forged(t *testing.T) {
	a := NewAuthMiddleware("test-secret", nil)
	other := NewAuthMiddleware("other-secret", nil)

	token := other.IssueToken(42)

	if _, ok := a.ParseToken(token); ok {
		t.Fatalf("token signed with another key must be rejected")
	}
}

func TestParseToken_TamperedUserID(t *testing.T) {
	a := NewAuthMiddleware("test-secret", nil)

	token := a.IssueToken(42)
	parts := strings.SplitN(token, ".", 2)
	tampered := "1." + parts[1]

	if _, ok := a.ParseToken(tampered); ok {
		t.Fatalf("tampered token must be rejected")
	}
}

func TestMiddleware(t *testing.T) {
	activeUser := &model.User{ID: 1, IsActive: true, AccessLevel: model.AccessLevelSeller}
	inactiveUser := &model.User{ID: 2, IsActive: false, AccessLevel: model.AccessLevelSeller}

	tests := []struct {
		name       string
		user       *model.User
		authHeader func(a *AuthMiddleware) string
		wantStatus int
	}{
		{
			name:       "valid token",
			user:       activeUser,
			authHeader: func(a *AuthMiddleware) string { return "Bearer " + a.IssueToken(1) },
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			user:       activeUser,
			authHeader: func(a *AuthMiddleware) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			user:       activeUser,
			authHeader: func(a *AuthMiddleware) string { return "Bearer not.a.token" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "inactive user",
			user:       inactiveUser,
			authHeader: func(a *AuthMiddleware) string { return "Bearer " + a.IssueToken(2) },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuthMiddleware("test-secret", &stubUsers{user: tt.user})

			var gotUser *model.User
			h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = GetUserFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header := tt.authHeader(a); header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotUser == nil {
				t.Fatalf("user must be present in context")
			}
		})
	}
}

func TestRequireSeller(t *testing.T) {
	tests := []struct {
		name       string
		level      model.AccessLevel
		wantStatus int
	}{
		{name: "admin", level: model.AccessLevelAdmin, wantStatus: http.StatusOK},
		{name: "seller", level: model.AccessLevelSeller, wantStatus: http.StatusOK},
		{name: "user", level: model.AccessLevelUser, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireSeller(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			user := &model.User{ID: 1, IsActive: true, AccessLevel: tt.level}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), userKey, user))
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
