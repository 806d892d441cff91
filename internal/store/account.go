package store

import (
	"encoding/json"
	"log/slog"

	"github.com/dorvan/medtide/internal/model"
)

// Storage keys. accounts holds the full account list as a JSON array;
// active_account holds a full copy of the active entry, not just its
// user id, so the pointer survives a briefly inconsistent list.
const (
	accountsKey      = "accounts"
	activeAccountKey = "active_account"
)

// AccountStore is the durable multi-account credential store. Losing
// session state is recoverable by logging in again, so every storage or
// decode failure here degrades to "no accounts" instead of surfacing to
// callers.
type AccountStore struct {
	kv     *KV
	logger *slog.Logger
}

func NewAccountStore(kv *KV, logger *slog.Logger) *AccountStore {
	return &AccountStore{kv: kv, logger: logger}
}

// Add appends an account to the stored list. No-op when the user is
// already present (the original token is retained) or when either field
// is empty.
func (s *AccountStore) Add(user, accessToken string) {
	acc := model.Account{User: user, AccessToken: accessToken}
	if !acc.Valid() {
		s.logger.Debug("ignoring malformed account", "user", user)
		return
	}

	accounts := s.List()
	for _, existing := range accounts {
		if existing.User == user {
			return
		}
	}

	accounts = append(accounts, acc)
	s.persistList(accounts)
}

// List returns the stored account list, or an empty slice when nothing
// is stored or the record is unreadable. Entries missing a user or
// token are filtered out.
func (s *AccountStore) List() []model.Account {
	raw, ok, err := s.kv.Get(accountsKey)
	if err != nil {
		s.logger.Warn("read account list", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var accounts []model.Account
	if err := json.Unmarshal(raw, &accounts); err != nil {
		s.logger.Warn("corrupt account list, treating as empty", "error", err)
		return nil
	}

	valid := accounts[:0]
	for _, acc := range accounts {
		if acc.Valid() {
			valid = append(valid, acc)
		}
	}
	return valid
}

// Switch makes the named account active. Returns false and leaves the
// active pointer untouched when the user is not in the stored list.
func (s *AccountStore) Switch(user string) bool {
	for _, acc := range s.List() {
		if acc.User == user {
			data, err := json.Marshal(acc)
			if err != nil {
				s.logger.Warn("encode active account", "error", err)
				return false
			}
			if err := s.kv.Put(activeAccountKey, data); err != nil {
				s.logger.Warn("persist active account", "error", err)
				return false
			}
			return true
		}
	}
	return false
}

// Active returns the active account, or nil when none is set. A pointer
// that no longer resolves to a member of the account list is stale; it
// is cleared and nil is returned.
func (s *AccountStore) Active() *model.Account {
	raw, ok, err := s.kv.Get(activeAccountKey)
	if err != nil {
		s.logger.Warn("read active account", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var acc model.Account
	if err := json.Unmarshal(raw, &acc); err != nil || !acc.Valid() {
		s.logger.Warn("corrupt active account, clearing", "error", err)
		s.clearActive()
		return nil
	}

	for _, member := range s.List() {
		if member.User == acc.User {
			return &acc
		}
	}

	s.logger.Warn("active account not in account list, clearing", "user", acc.User)
	s.clearActive()
	return nil
}

// Remove filters the named account out of the list. If it was the
// active account, the active pointer is cleared too.
func (s *AccountStore) Remove(user string) {
	accounts := s.List()
	kept := accounts[:0]
	for _, acc := range accounts {
		if acc.User != user {
			kept = append(kept, acc)
		}
	}
	s.persistList(kept)

	raw, ok, err := s.kv.Get(activeAccountKey)
	if err != nil || !ok {
		return
	}
	var active model.Account
	if err := json.Unmarshal(raw, &active); err != nil || active.User == user {
		s.clearActive()
	}
}

func (s *AccountStore) persistList(accounts []model.Account) {
	if accounts == nil {
		accounts = []model.Account{}
	}
	data, err := json.Marshal(accounts)
	if err != nil {
		s.logger.Warn("encode account list", "error", err)
		return
	}
	if err := s.kv.Put(accountsKey, data); err != nil {
		s.logger.Warn("persist account list", "error", err)
	}
}

func (s *AccountStore) clearActive() {
	if err := s.kv.Delete(activeAccountKey); err != nil {
		s.logger.Warn("clear active account", "error", err)
	}
}
