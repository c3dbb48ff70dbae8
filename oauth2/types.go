package oauth2

// BearerTokenType is the only token_type the identity backend issues.
const BearerTokenType = "bearer"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GoogleLoginRequest is the body of POST /auth/google. IDToken is the token
// obtained from Google Sign-In on the device.
type GoogleLoginRequest struct {
	IDToken string `json:"id_token"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// BackendUser is the user record returned by GET /auth/me and
// POST /auth/register. The backend uses a numeric id.
type BackendUser struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	IsActive bool   `json:"is_active"`
	IsAdmin  bool   `json:"is_admin"`
}

// ErrorResponse is the body the backend sends with any non-2xx status.
type ErrorResponse struct {
	Detail string `json:"detail"`
}
