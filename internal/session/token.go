package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpired reports whether accessToken is a JWT whose exp claim is
// in the past. The signature is not verified; only the server can do
// that, and the answer here is advisory. Opaque tokens and JWTs without
// an exp claim report false.
func tokenExpired(accessToken string, now time.Time) (bool, time.Time) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return false, time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false, time.Time{}
	}

	if exp.Time.Before(now) {
		return true, exp.Time
	}
	return false, time.Time{}
}
