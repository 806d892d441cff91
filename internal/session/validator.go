package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dorvan/medtide/internal/model"
	"github.com/dorvan/medtide/internal/store"
)

// Verdict classifies the outcome of a session check.
type Verdict int

const (
	// Valid means the server accepted the credential.
	Valid Verdict = iota
	// Invalid means the credential was rejected and, for rejection
	// statuses, the account has been evicted from the store.
	Invalid
	// Indeterminate means no response was received. The account is kept;
	// losing connectivity is the normal condition the realtime channel
	// is built to ride out, not grounds for a forced re-login.
	Indeterminate
)

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Indeterminate:
		return "indeterminate"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Result carries the verdict and, for invalid credentials, the reason.
type Result struct {
	Verdict Verdict
	Reason  string
}

// Validator checks whether the active account's credential is still
// accepted by the server, evicting it from the account store when the
// server rejects it outright.
type Validator struct {
	baseURL    string
	accounts   *store.AccountStore
	httpClient *http.Client
	logger     *slog.Logger
}

func NewValidator(baseURL string, accounts *store.AccountStore, logger *slog.Logger) *Validator {
	return &Validator{
		baseURL:    baseURL,
		accounts:   accounts,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Validate checks the account against GET {api}/protected. Statuses
// 401, 404 and 500 mean the credential is dead: the account is evicted
// and the caller should route to login. A transport failure with no
// response leaves the account alone and returns Indeterminate.
func (v *Validator) Validate(ctx context.Context, account model.Account) Result {
	if !account.Valid() {
		return Result{Verdict: Invalid, Reason: "missing user or token"}
	}

	// A token that is demonstrably past its expiry will be rejected with
	// 401 anyway; skip the round trip.
	if expired, expiry := tokenExpired(account.AccessToken, time.Now()); expired {
		v.logger.Info("token expired locally, evicting account",
			"user", account.User, "expired_at", expiry)
		v.accounts.Remove(account.User)
		return Result{Verdict: Invalid, Reason: "token expired"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/protected", nil)
	if err != nil {
		// Not a network condition: the configured base URL cannot form a
		// request. No amount of retrying fixes it, so say so loudly.
		v.logger.Error("invalid server URL, cannot check session",
			"base_url", v.baseURL, "error", err)
		return Result{Verdict: Indeterminate, Reason: fmt.Sprintf("invalid server URL: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Warn("session check unreachable, keeping account",
			"user", account.User, "error", err)
		return Result{Verdict: Indeterminate, Reason: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Verdict: Valid}
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusInternalServerError:
		v.logger.Info("credential rejected, evicting account",
			"user", account.User, "status", resp.StatusCode)
		v.accounts.Remove(account.User)
		return Result{Verdict: Invalid, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	default:
		// Unexpected status: deny access but keep the stored account.
		return Result{Verdict: Invalid, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}
}
