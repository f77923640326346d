package api

import (
	"context"
	"fmt"
)

// LoginRequest carries credentials for /auth/login. Login accepts either
// a username or an email address.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// RegisterRequest carries credentials for /auth/register.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// VerifyRequest carries the email verification code for /auth/verify.
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Login authenticates and returns a fresh access token. The server also
// sets the refresh-token cookie on the client's jar.
func (c *Client) Login(ctx context.Context, login, password string) (*TokenResponse, error) {
	var tokens TokenResponse
	if err := c.Post(ctx, "/auth/login", LoginRequest{Login: login, Password: password}, &tokens); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return &tokens, nil
}

// Register creates an account and returns its first access token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenResponse, error) {
	var tokens TokenResponse
	if err := c.Post(ctx, "/auth/register", req, &tokens); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &tokens, nil
}

// Verify submits an email verification code and returns a new access token
// carrying the verified claim.
func (c *Client) Verify(ctx context.Context, email, code string) (*TokenResponse, error) {
	var tokens TokenResponse
	if err := c.Post(ctx, "/auth/verify", VerifyRequest{Email: email, Code: code}, &tokens); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	return &tokens, nil
}

// ResendVerification requests a fresh verification code for the email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	body := struct {
		Email string `json:"email"`
	}{Email: email}
	if err := c.Post(ctx, "/auth/resend", body, nil); err != nil {
		return fmt.Errorf("resend verification: %w", err)
	}
	return nil
}

// RefreshToken exchanges the refresh-token cookie for a new access token.
// The endpoint is excluded from the reactive 401 retry, so a rejected
// refresh surfaces directly.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var tokens TokenResponse
	if err := c.Post(ctx, "/auth/refresh", nil, &tokens); err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	if tokens.AccessToken == "" {
		return "", fmt.Errorf("refresh: no access token in response")
	}
	return tokens.AccessToken, nil
}

// Logout revokes the refresh token server-side.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.Post(ctx, "/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.Get(ctx, "/users/me", &user); err != nil {
		return nil, fmt.Errorf("who am i: %w", err)
	}
	return &user, nil
}
