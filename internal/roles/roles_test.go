package roles

import "testing"

func TestParseAcceptsIDsAndNames(t *testing.T) {
	cases := map[string]Role{"1": Root, "2": Admin, "3": Staff, "admin": Admin, " Staff ": Staff}
	for raw, want := range cases {
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %v, got %v", raw, want, got)
		}
	}
	if _, err := Parse("9"); err == nil {
		t.Fatalf("expected unknown role id to fail")
	}
	if _, err := Parse("cashier"); err == nil {
		t.Fatalf("expected unknown role name to fail")
	}
}

func TestCanAccessGuardsAdminRoutes(t *testing.T) {
	if CanAccess(Staff, RouteUsers) {
		t.Fatalf("staff must not open user administration")
	}
	if CanAccess(Staff, RouteStaffCreate) {
		t.Fatalf("staff must not create staff accounts")
	}
	if !CanAccess(Staff, RouteSaleCreate) {
		t.Fatalf("staff must be able to create sales")
	}
	if !CanAccess(Admin, RouteUsers) {
		t.Fatalf("admin must open user administration")
	}
	if !CanAccess(Root, RouteUsers) || !CanAccess(Root, RouteSaleCreate) {
		t.Fatalf("root must pass every route")
	}
	if !CanAccess(Staff, RouteEntries) {
		t.Fatalf("unlisted routes are open to authenticated roles")
	}
	if CanAccess(Role(0), RouteDashboard) {
		t.Fatalf("unknown role must be rejected")
	}
}
