package request

// CreateBackup requests a new backup. The type/schema pairing is checked by
// the backup service.
type CreateBackup struct {
	Name         string `json:"name" validate:"max=255"`
	Type         string `json:"type" validate:"required,oneof=full_system tenant_only configuration database_only"`
	TenantSchema string `json:"tenant_schema" validate:"omitempty,schema"`
}
