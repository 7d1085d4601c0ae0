package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runWithRoles(roles []string, mw echo.MiddlewareFunc) error {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(context.Background(), "u1", roles))
	rec := httptest.NewRecorder()
	return mw(okHandler)(e.NewContext(req, rec))
}

func TestRequireRole(t *testing.T) {
	mw := RequireRole("HOSPITAL", "DOCTOR")

	if err := runWithRoles([]string{"DOCTOR"}, mw); err != nil {
		t.Errorf("expected DOCTOR to pass, got %v", err)
	}
	if err := runWithRoles([]string{RoleSuperAdmin}, mw); err != nil {
		t.Errorf("expected SUPER_ADMIN to pass, got %v", err)
	}
	err := runWithRoles([]string{RoleDonor}, mw)
	if err == nil {
		t.Fatal("expected DONOR to be rejected")
	}
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestIsAdmin(t *testing.T) {
	if IsAdmin([]string{RoleDonor, "RECIPIENT"}) {
		t.Error("donor is not admin")
	}
	if !IsAdmin([]string{RoleDonor, RoleAdmin}) {
		t.Error("expected admin")
	}
	if IsAdmin(nil) {
		t.Error("nil roles are not admin")
	}
}
