package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dorvan/medtide/internal/database"
	"github.com/dorvan/medtide/internal/model"
	"github.com/dorvan/medtide/internal/store"
)

func setupValidatorStore(t *testing.T) *store.AccountStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewAccountStore(store.NewKV(db), slog.Default())
}

func protectedServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/protected" {
			t.Errorf("path = %q, want /protected", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer t1" {
			t.Errorf("authorization = %q, want Bearer t1", got)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestValidateOK(t *testing.T) {
	accounts := setupValidatorStore(t)
	accounts.Add("alice", "t1")
	accounts.Switch("alice")
	server := protectedServer(t, http.StatusOK)

	v := NewValidator(server.URL, accounts, slog.Default())
	res := v.Validate(context.Background(), model.Account{User: "alice", AccessToken: "t1"})

	if res.Verdict != Valid {
		t.Fatalf("verdict = %s, want valid", res.Verdict)
	}
	if accounts.Active() == nil {
		t.Error("expected account to be kept")
	}
}

func TestValidateRejectionEvicts(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(fmt.Sprintf("status%d", status), func(t *testing.T) {
			accounts := setupValidatorStore(t)
			accounts.Add("alice", "t1")
			accounts.Switch("alice")
			server := protectedServer(t, status)

			v := NewValidator(server.URL, accounts, slog.Default())
			res := v.Validate(context.Background(), model.Account{User: "alice", AccessToken: "t1"})

			if res.Verdict != Invalid {
				t.Fatalf("verdict = %s, want invalid", res.Verdict)
			}
			if len(accounts.List()) != 0 {
				t.Error("expected account to be evicted")
			}
			if accounts.Active() != nil {
				t.Error("expected active pointer to be cleared")
			}
		})
	}
}

func TestValidateOtherStatusNoEviction(t *testing.T) {
	accounts := setupValidatorStore(t)
	accounts.Add("alice", "t1")
	server := protectedServer(t, http.StatusForbidden)

	v := NewValidator(server.URL, accounts, slog.Default())
	res := v.Validate(context.Background(), model.Account{User: "alice", AccessToken: "t1"})

	if res.Verdict != Invalid {
		t.Fatalf("verdict = %s, want invalid", res.Verdict)
	}
	if len(accounts.List()) != 1 {
		t.Error("expected account to be kept for non-rejection status")
	}
}

func TestValidateUnreachableIsIndeterminate(t *testing.T) {
	accounts := setupValidatorStore(t)
	accounts.Add("alice", "t1")
	accounts.Switch("alice")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listening anymore

	v := NewValidator(server.URL, accounts, slog.Default())
	res := v.Validate(context.Background(), model.Account{User: "alice", AccessToken: "t1"})

	if res.Verdict != Indeterminate {
		t.Fatalf("verdict = %s, want indeterminate", res.Verdict)
	}
	if len(accounts.List()) != 1 {
		t.Error("expected account to survive a network failure")
	}
}

func TestValidateBadBaseURL(t *testing.T) {
	accounts := setupValidatorStore(t)
	accounts.Add("alice", "t1")
	accounts.Switch("alice")

	// ":" cannot form a request URL; this is a configuration error, not
	// a network failure, and must be named as such.
	v := NewValidator(":", accounts, slog.Default())
	res := v.Validate(context.Background(), model.Account{User: "alice", AccessToken: "t1"})

	if res.Verdict != Indeterminate {
		t.Fatalf("verdict = %s, want indeterminate", res.Verdict)
	}
	if !strings.Contains(res.Reason, "invalid server URL") {
		t.Errorf("reason = %q, want it to name the bad URL", res.Reason)
	}
	if len(accounts.List()) != 1 {
		t.Error("expected account to survive a configuration error")
	}
}

func TestValidateMissingFields(t *testing.T) {
	accounts := setupValidatorStore(t)
	v := NewValidator("http://unused.invalid", accounts, slog.Default())

	res := v.Validate(context.Background(), model.Account{User: "alice"})
	if res.Verdict != Invalid {
		t.Errorf("verdict = %s, want invalid", res.Verdict)
	}
}

// unsignedJWT builds an unsigned JWT with the given expiry.
func unsignedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]any{"sub": "alice", "exp": exp.Unix()})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}

func TestValidateLocallyExpiredToken(t *testing.T) {
	accounts := setupValidatorStore(t)
	token := unsignedJWT(t, time.Now().Add(-time.Hour))
	accounts.Add("alice", token)
	accounts.Switch("alice")

	// No server: an expired JWT must not trigger a request at all.
	v := NewValidator("http://unused.invalid", accounts, slog.Default())
	res := v.Validate(context.Background(), model.Account{User: "alice", AccessToken: token})

	if res.Verdict != Invalid {
		t.Fatalf("verdict = %s, want invalid", res.Verdict)
	}
	if len(accounts.List()) != 0 {
		t.Error("expected expired account to be evicted")
	}
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	if expired, _ := tokenExpired("opaque-token", now); expired {
		t.Error("opaque token must not report expired")
	}

	future := unsignedJWTRaw(now.Add(time.Hour))
	if expired, _ := tokenExpired(future, now); expired {
		t.Error("future JWT must not report expired")
	}

	past := unsignedJWTRaw(now.Add(-time.Minute))
	expired, at := tokenExpired(past, now)
	if !expired {
		t.Fatal("past JWT must report expired")
	}
	if at.After(now) {
		t.Errorf("expiry %v is not in the past", at)
	}
}

func unsignedJWTRaw(exp time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, _ := json.Marshal(map[string]any{"exp": exp.Unix()})
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}
