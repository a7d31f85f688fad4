package auth

// login request payload
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Password string `json:"password" binding:"required" validate:"required"`
}

// registration request payload
type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email" validate:"required,email"`
	Password  string `json:"password" binding:"required,min=6" validate:"required,min=6"`
	FirstName string `json:"firstName" binding:"required,max=100" validate:"required,max=100"`
	LastName  string `json:"lastName" binding:"required,max=100" validate:"required,max=100"`
}
