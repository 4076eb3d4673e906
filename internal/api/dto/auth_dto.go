package dto

// RegisterRequest payload for tenant self-registration.
type RegisterRequest struct {
	CompanyName string `json:"companyName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest payload for minting a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
