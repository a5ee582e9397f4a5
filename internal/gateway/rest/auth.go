package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/classroom/internal/model"
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID           string       `json:"id"`
		Email        string       `json:"email"`
		UserMetadata userMetadata `json:"user_metadata"`
	} `json:"user"`
}

type userMetadata struct {
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// accessClaims is the subset of the access token the client reads. The
// signature is checked by the backend, never here.
type accessClaims struct {
	jwt.RegisteredClaims
	Email        string       `json:"email"`
	UserMetadata userMetadata `json:"user_metadata"`
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	body := map[string]string{"email": email, "password": password}
	return c.token(ctx, "password", body)
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	return c.token(ctx, "refresh_token", body)
}

func (c *Client) token(ctx context.Context, grant string, body any) (*model.Session, error) {
	var tr tokenResponse
	_, err := c.do(ctx, request{
		op:     "auth_" + grant,
		method: http.MethodPost,
		path:   authPrefix + "token",
		query:  url.Values{"grant_type": {grant}},
		body:   body,
		bearer: c.anonKey,
	}, &tr)
	if err != nil {
		return nil, fmt.Errorf("requesting %s token: %w", grant, err)
	}
	return c.adopt(tr)
}

// SendOTP mails a one-time code to an existing account.
func (c *Client) SendOTP(ctx context.Context, email string) error {
	body := map[string]any{"email": email, "create_user": false}
	_, err := c.do(ctx, request{
		op: "auth_otp", method: http.MethodPost, path: authPrefix + "otp", body: body, bearer: c.anonKey,
	}, nil)
	if err != nil {
		return fmt.Errorf("sending one-time code: %w", err)
	}
	return nil
}

// VerifyOTP exchanges an emailed code for a session.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (*model.Session, error) {
	body := map[string]string{"type": "email", "email": email, "token": code}
	var tr tokenResponse
	_, err := c.do(ctx, request{
		op: "auth_verify", method: http.MethodPost, path: authPrefix + "verify", body: body, bearer: c.anonKey,
	}, &tr)
	if err != nil {
		return nil, fmt.Errorf("verifying one-time code: %w", err)
	}
	return c.adopt(tr)
}

// SignOut revokes s server side and clears the client's session.
func (c *Client) SignOut(ctx context.Context, s *model.Session) error {
	defer c.SetSession(nil)
	if s == nil || s.AccessToken == "" {
		return nil
	}
	_, err := c.do(ctx, request{
		op: "auth_logout", method: http.MethodPost, path: authPrefix + "logout", bearer: s.AccessToken,
	}, nil)
	if err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

// adopt turns a token response into a Session and makes it current.
func (c *Client) adopt(tr tokenResponse) (*model.Session, error) {
	s, err := sessionFromToken(tr, c.now())
	if err != nil {
		return nil, err
	}
	c.SetSession(s)
	return s, nil
}

func sessionFromToken(tr tokenResponse, now time.Time) (*model.Session, error) {
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access token")
	}

	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, &claims); err != nil {
		return nil, fmt.Errorf("decoding access token: %w", err)
	}

	s := &model.Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		User: model.User{
			ID:       firstNonEmpty(tr.User.ID, claims.Subject),
			Email:    firstNonEmpty(tr.User.Email, claims.Email),
			FullName: firstNonEmpty(tr.User.UserMetadata.FullName, claims.UserMetadata.FullName),
			Role:     firstNonEmpty(tr.User.UserMetadata.Role, claims.UserMetadata.Role, model.RoleStudent),
		},
	}

	switch {
	case claims.ExpiresAt != nil:
		s.ExpiresAt = claims.ExpiresAt.Time
	case tr.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tr.ExpiresAt, 0)
	case tr.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	if s.User.ID == "" {
		return nil, fmt.Errorf("access token has no subject")
	}
	return s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
