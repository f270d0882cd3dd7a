// internal/apiclient/token.go
package apiclient

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the client can tell about an access token without the signing key.
type TokenInfo struct {
	UserName  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// unverifiedParser decodes claims only. The target signs with a key we never hold.
var unverifiedParser = jwt.NewParser(jwt.WithoutClaimsValidation())

// InspectToken decodes the claims of a bearer token issued by GenerateToken.
func InspectToken(raw string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(raw, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("token is not a well-formed jwt: %w", err)
	}

	var info TokenInfo
	if name, ok := claims["userName"].(string); ok {
		info.UserName = name
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

// Expired reports whether the token carries an expiry that has passed.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
