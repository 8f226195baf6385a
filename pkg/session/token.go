package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenInfo is what can be read from an access token without the signing
// key. It is informational only; the backend remains the authority.
type TokenInfo struct {
	UserID    string     `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	TokenType string     `json:"token_type,omitempty" yaml:"token_type,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

func (t TokenInfo) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// InspectToken decodes the claims of a JWT without verifying its signature.
func InspectToken(raw string) (TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenInfo{}, errors.Wrap(err, "decode token")
	}

	var info TokenInfo
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return TokenInfo{}, errors.Wrap(err, "decode token expiry")
	}
	if exp != nil {
		t := exp.Time
		info.ExpiresAt = &t
	}
	if v, ok := claims["user_id"]; ok && v != nil {
		switch id := v.(type) {
		case float64:
			info.UserID = fmt.Sprintf("%.0f", id)
		default:
			info.UserID = fmt.Sprint(id)
		}
	}
	if v, ok := claims["token_type"].(string); ok {
		info.TokenType = v
	}
	return info, nil
}
