package client

import "context"

// TokenRequest is the token exchange request body
type TokenRequest struct {
	AccessToken string `json:"access_token"`
	Subject     string `json:"subject,omitempty"`
}

// TokenResponse carries the issued JWT
type TokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// ExchangeToken trades a configured access token for a short-lived JWT
func (c *Client) ExchangeToken(ctx context.Context, accessToken, subject string) (*TokenResponse, error) {
	req := &TokenRequest{AccessToken: accessToken, Subject: subject}
	var resp TokenResponse
	if err := c.Post(ctx, "/auth/token", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
