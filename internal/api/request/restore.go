package request

// RestoreTenant restores one tenant schema from a completed backup. The
// caller must type the tenant's domain to confirm.
type RestoreTenant struct {
	BackupID         string `json:"backup_id" validate:"required"`
	ConfirmationText string `json:"confirmation_text" validate:"required"`
}
