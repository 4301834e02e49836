package model

// AuthResponse is the body of a successful POST /auth/signin. Some backend
// builds name the credential "token" instead of "accessToken".
type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	Token       string `json:"token"`
	Type        string `json:"type,omitempty"`
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}

// Credential returns whichever token field the backend populated.
func (r AuthResponse) Credential() string {
	if r.AccessToken != "" {
		return r.AccessToken
	}
	return r.Token
}

// MessageResponse is the generic {"message": "..."} body.
type MessageResponse struct {
	Message string `json:"message"`
}
