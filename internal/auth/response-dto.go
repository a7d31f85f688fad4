package auth

import "eventhub/internal/session"

// represents the backend's authentication response
type AuthResponse struct {
	Token     string   `json:"token"`
	Type      string   `json:"type"`
	UserID    int64    `json:"userId"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

// User converts the response into the stored profile
func (r AuthResponse) User() session.User {
	return session.User{
		ID:        r.UserID,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Roles:     r.Roles,
	}
}

// represents user data returned to callers (never the token)
type UserResponse struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

func NewUserResponse(u session.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     u.Roles,
	}
}
