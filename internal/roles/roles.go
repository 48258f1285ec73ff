package roles

import (
	"fmt"
	"strconv"
	"strings"
)

type Role int

const (
	Root  Role = 1
	Admin Role = 2
	Staff Role = 3
)

func (r Role) String() string {
	switch r {
	case Root:
		return "root"
	case Admin:
		return "admin"
	case Staff:
		return "staff"
	default:
		return "unknown"
	}
}

func (r Role) Valid() bool {
	return r == Root || r == Admin || r == Staff
}

// Parse accepts either the numeric id ("2") or the role name ("admin").
func Parse(raw string) (Role, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if n, err := strconv.Atoi(value); err == nil {
		role := Role(n)
		if !role.Valid() {
			return 0, fmt.Errorf("unknown role id %d", n)
		}
		return role, nil
	}
	switch value {
	case "root":
		return Root, nil
	case "admin":
		return Admin, nil
	case "staff":
		return Staff, nil
	}
	return 0, fmt.Errorf("unknown role %q", raw)
}

// Route keys for the client-side guard table.
const (
	RouteDashboard   = "dashboard"
	RouteProducts    = "products"
	RouteSaleCreate  = "sales.create"
	RouteSales       = "sales"
	RouteSalesReport = "sales.report"
	RouteStaffCreate = "staff.create"
	RouteUsers       = "users"
	RouteEntries     = "entries"
	RouteExits       = "exits"
)

var routeRoles = map[string][]Role{
	RouteSaleCreate:  {Admin, Staff},
	RouteStaffCreate: {Admin},
	RouteUsers:       {Admin},
}

// CanAccess reports whether role may open route. Routes without an entry in
// the table are open to any authenticated role; root passes every check.
func CanAccess(role Role, route string) bool {
	if !role.Valid() {
		return false
	}
	if role == Root {
		return true
	}
	allowed, ok := routeRoles[route]
	if !ok {
		return true
	}
	return In(role, allowed...)
}

func In(role Role, allowed ...Role) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}
