package model

import "time"

// Tenant is the read-only view of a shop whose data lives in its own
// Postgres schema. Tenants are provisioned elsewhere.
type Tenant struct {
	SchemaName string    `json:"schema_name" db:"schema_name"`
	DomainURL  string    `json:"domain_url" db:"domain_url"`
	Name       string    `json:"name" db:"name"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// reservedSchemas can never be dropped or restored as a tenant.
var reservedSchemas = map[string]bool{
	"public":             true,
	"information_schema": true,
	"pg_catalog":         true,
	"pg_toast":           true,
}

// IsReservedSchema reports whether name is a system or shared schema.
func IsReservedSchema(name string) bool {
	if reservedSchemas[name] {
		return true
	}
	return len(name) >= 3 && name[:3] == "pg_"
}
