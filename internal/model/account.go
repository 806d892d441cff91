package model

// Account is one stored server identity. User is the identity key; at
// most one entry per user exists in the stored account list.
type Account struct {
	User        string `json:"user"`
	AccessToken string `json:"access_token"`
}

// Valid reports whether the account carries both fields required to
// authenticate. Entries failing this check are dropped on read.
func (a Account) Valid() bool {
	return a.User != "" && a.AccessToken != ""
}
