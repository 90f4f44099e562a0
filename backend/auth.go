package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"voxdoc/log"
	"voxdoc/session"
)

var ErrPasswordMismatch = errors.New("passwords do not match")

type credentials struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	UserEmail   string `json:"user_email"`
}

// Login exchanges credentials for a token and stores it in the session.
func (c *Client) Login(ctx context.Context, email, password string) (session.State, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return session.State{}, errors.New("email and password are required")
	}

	var resp loginResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", credentials{Email: email, Password: password}, &resp, false)
	if err != nil {
		return session.State{}, err
	}
	if resp.AccessToken == "" {
		return session.State{}, errors.New("login response carried no access token")
	}

	st := session.State{Token: resp.AccessToken, Email: resp.UserEmail, UserID: resp.UserID}
	if st.Email == "" {
		st.Email = email
	}
	if err := c.sessions.Set(st); err != nil {
		return st, fmt.Errorf("saving session: %w", err)
	}
	log.Infof("signed in as %s", st.Email)
	return st, nil
}

type SignupResult struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// Signup creates an account. The server usually requires email verification
// before the first Login succeeds.
func (c *Client) Signup(ctx context.Context, email, password, confirm string) (SignupResult, error) {
	if password != confirm {
		return SignupResult{}, ErrPasswordMismatch
	}
	var resp SignupResult
	err := c.doJSON(ctx, http.MethodPost, "/auth/signup", credentials{
		Email:           strings.TrimSpace(email),
		Password:        password,
		ConfirmPassword: confirm,
	}, &resp, false)
	return resp, err
}

// Logout tells the server and always clears the local session, even if the
// request fails.
func (c *Client) Logout(ctx context.Context) error {
	var reqErr error
	if c.sessions.IsAuthenticated() {
		reqErr = c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil, true)
		if reqErr != nil {
			log.Warnf("logout request failed: %v", reqErr)
		}
	}
	if err := c.sessions.Clear(); err != nil {
		return err
	}
	return nil
}

type Verification struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id"`
}

// Verify asks the server whether the stored token is still valid. An invalid
// token clears the session.
func (c *Client) Verify(ctx context.Context) (Verification, error) {
	if !c.sessions.IsAuthenticated() {
		return Verification{}, session.ErrNotAuthenticated
	}
	var v Verification
	if err := c.doJSON(ctx, http.MethodGet, "/auth/verify", nil, &v, true); err != nil {
		return v, err
	}
	if !v.Authenticated {
		if err := c.sessions.Clear(); err != nil {
			log.Errorf("clearing session: %v", err)
		}
		return v, ErrUnauthorized
	}
	return v, nil
}
