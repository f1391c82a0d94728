// Package auth signs and verifies compact HS256 tokens. The back-office uses
// them for the OAuth state parameter so the callback can be tied back to the
// principal that started the flow without server-side storage.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type Claims struct {
	Sub     string `json:"sub"`
	Role    string `json:"role"`
	Purpose string `json:"pur,omitempty"`
	Nonce   string `json:"nonce,omitempty"`
	Exp     int64  `json:"exp"`
	Iat     int64  `json:"iat"`
}

// NewClaims stamps iat/exp and a random nonce.
func NewClaims(sub, role, purpose string, ttl time.Duration, now time.Time) Claims {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return Claims{
		Sub:     sub,
		Role:    role,
		Purpose: purpose,
		Nonce:   hex.EncodeToString(b[:]),
		Iat:     now.Unix(),
		Exp:     now.Add(ttl).Unix(),
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	unsigned := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return unsigned + "." + hmacSHA256(unsigned, secret), nil
}

// ParseAndVerifyHS256 checks the signature, expiry and, when purpose is
// non-empty, that the token was minted for that purpose.
func ParseAndVerifyHS256(token, secret, purpose string, now time.Time) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || secret == "" {
		return nil, ErrInvalidToken
	}
	unsigned := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(hmacSHA256(unsigned, secret))) {
		return nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if purpose != "" && claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	if claims.Exp > 0 && now.Unix() > claims.Exp {
		return nil, ErrExpiredToken
	}
	return &claims, nil
}

func hmacSHA256(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
