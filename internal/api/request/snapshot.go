package request

type CreateSnapshot struct {
	Type        string `json:"type" validate:"omitempty,oneof=pre_operation manual"`
	Description string `json:"description" validate:"required,max=500"`
}
