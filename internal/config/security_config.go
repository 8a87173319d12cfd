// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic   SecurityLevel = iota // No authentication
	SecurityAccess                        // Any valid access token
	SecurityOperator                      // WARDEN or ADMIN
	SecurityAdmin                         // ADMIN only
)

// EndpointSecurityConfig maps "METHOD route-template" to the required
// security level. Routes missing from the map require an access token.
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Probes
	"GET /healthz": SecurityPublic,
	"GET /metrics": SecurityPublic,

	// Ledger
	"GET /api/v1/bookings/{id}/ledger":   SecurityAccess,
	"GET /api/v1/bookings/{id}/payments": SecurityAccess,
	"GET /api/v1/bookings/{id}/refunds":  SecurityAccess,

	// Payments
	"POST /api/v1/payments":               SecurityAccess,
	"GET /api/v1/payments":                SecurityAccess,
	"GET /api/v1/payments/{id}":           SecurityAccess,
	"POST /api/v1/payments/{id}/proof":    SecurityAccess,
	"POST /api/v1/payments/{id}/approve":  SecurityOperator,
	"POST /api/v1/payments/{id}/reject":   SecurityOperator,
	"POST /api/v1/payments/{id}/cancel":   SecurityAccess,
	"POST /api/v1/payments/{id}/override": SecurityAdmin,
	"DELETE /api/v1/payments/{id}":        SecurityAdmin,
	"GET /api/v1/payments/{id}/actions":   SecurityOperator,

	// Refunds
	"POST /api/v1/refunds":              SecurityAccess,
	"POST /api/v1/refunds/{id}/resolve": SecurityOperator,

	// Billing
	"POST /api/v1/dues/{period}/generate": SecurityOperator,
	"GET /api/v1/defaulters":              SecurityOperator,

	// Notifications
	"GET /api/v1/notifications":            SecurityAccess,
	"POST /api/v1/notifications/{id}/read": SecurityAccess,

	// Receipts
	"POST /api/v1/receipts":         SecurityAccess,
	"GET /api/v1/receipts/{key:.+}": SecurityAccess,
}

// RequiredSecurity returns the level for a route, defaulting to SecurityAccess.
func RequiredSecurity(method, pathTemplate string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[method+" "+pathTemplate]; ok {
		return level
	}
	return SecurityAccess
}
