package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrUnreachable means no response was received at all. Callers treat
// it as indeterminate: the credential is not evicted and the operation
// may be retried.
var ErrUnreachable = errors.New("server unreachable")

// Error is a response the server did send, carrying its status and the
// detail message from the body when one was present.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// Client talks to the reminder server's account endpoints. The
// medicine/prescription/schedule CRUD surface lives behind separate
// collaborators and is not part of this client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Credentials is the response to a successful login: the identity key
// and the bearer token stored by the account store.
type Credentials struct {
	User        string `json:"user"`
	AccessToken string `json:"access_token"`
}

// UserInfo is the authenticated profile record.
type UserInfo struct {
	User          string `json:"user"`
	Username      string `json:"username"`
	DispenserCode string `json:"dispenser_code,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// Login exchanges a username and password for credentials.
func (c *Client) Login(ctx context.Context, username, password string) (Credentials, error) {
	var creds Credentials
	err := c.post(ctx, "/token", map[string]any{
		"username": username,
		"password": password,
	}, "", &creds)
	if err != nil {
		return Credentials{}, err
	}
	if creds.User == "" || creds.AccessToken == "" {
		return Credentials{}, fmt.Errorf("login response missing user or token")
	}
	return creds, nil
}

// Signup registers a new user. dispenserCode is optional and links the
// account to a physical dispenser.
func (c *Client) Signup(ctx context.Context, username, password, dispenserCode string) (string, error) {
	body := map[string]any{
		"username":       username,
		"password":       password,
		"dispenser_code": nil,
	}
	if dispenserCode != "" {
		body["dispenser_code"] = dispenserCode
	}

	var resp messageResponse
	if err := c.post(ctx, "/signup", body, "", &resp); err != nil {
		return "", err
	}
	if resp.Message == "" {
		resp.Message = "Your account has been successfully created."
	}
	return resp.Message, nil
}

// Logout invalidates the token server-side. Local state is the account
// store's concern; callers remove the account regardless of the result.
func (c *Client) Logout(ctx context.Context, token string) (string, error) {
	var resp messageResponse
	if err := c.post(ctx, "/logout", map[string]any{}, token, &resp); err != nil {
		return "", err
	}
	if resp.Message == "" {
		resp.Message = "You have been logged out."
	}
	return resp.Message, nil
}

// UpdateUsername changes the account's username; the current password
// re-authorizes the change.
func (c *Client) UpdateUsername(ctx context.Context, token, newUsername, password string) (string, error) {
	var resp messageResponse
	err := c.post(ctx, "/update/username", map[string]any{
		"username": newUsername,
		"password": password,
	}, token, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// UpdatePassword changes the account's password.
func (c *Client) UpdatePassword(ctx context.Context, token, newPassword, password string) (string, error) {
	var resp messageResponse
	err := c.post(ctx, "/update/password", map[string]any{
		"new_password": newPassword,
		"password":     password,
	}, token, &resp)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ReadUser fetches the authenticated profile. Reads are idempotent, so
// transient unreachability is retried a few times before giving up.
func (c *Client) ReadUser(ctx context.Context, token string) (UserInfo, error) {
	var info UserInfo
	backoff := retry.WithMaxRetries(3, retry.NewConstant(2*time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.get(ctx, "/read/user", token, &info)
		if errors.Is(err, ErrUnreachable) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return UserInfo{}, err
	}
	return info, nil
}

func (c *Client) post(ctx context.Context, path string, body any, token string, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		var detail messageResponse
		if json.Unmarshal(raw, &detail) == nil {
			apiErr.Detail = detail.Detail
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
