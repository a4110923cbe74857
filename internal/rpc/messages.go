package rpc

import "time"

type RequestVerificationCodeRequest struct {
	Phone string `json:"phone"`
}

type RequestVerificationCodeResponse struct {
	VerificationToken string `json:"verification_token"`
}

type RegisterRequest struct {
	Phone             string `json:"phone"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	VerificationToken string `json:"verification_token"`
	VerificationCode  string `json:"verification_code"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	Phone             string `json:"phone"`
	Password          string `json:"password"`
	VerificationToken string `json:"verification_token"`
	VerificationCode  string `json:"verification_code"`
}

type RefreshTokenRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// CurrentUserRequest is empty; the caller is taken from the access token.
type CurrentUserRequest struct{}

type ChangePhoneRequest struct {
	Phone             string `json:"phone"`
	VerificationToken string `json:"verification_token"`
	VerificationCode  string `json:"verification_code"`
}

type LogoutRequest struct{}

type LogoutResponse struct{}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse answers every call that starts a session.
type AuthResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type UserResponse struct {
	User User `json:"user"`
}
