package types

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type GenerationCreateRequest struct {
	IssueKey string `json:"issue_key" validate:"required"`
	Mode     string `json:"mode" validate:"omitempty,oneof=manual auto"`
}

type GenerationReviseRequest struct {
	Content string `json:"content" validate:"required"`
}

type GenerationPublishRequest struct {
	Published *bool `json:"published" validate:"required"`
}
