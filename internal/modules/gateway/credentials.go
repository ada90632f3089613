// README: Bearer credential sources and push identity.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoCredentials = errors.New("no access token available")

// CredentialSource yields the current bearer token. Token lifecycle belongs to the host app.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoCredentials
	}
	return string(s), nil
}

// FileCredentials reads {"access_token": "..."} on every call so an external refresher can rotate it.
type FileCredentials struct {
	Path string
}

func (f FileCredentials) Token(context.Context) (string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read credentials: %w", err)
	}
	var doc struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parse credentials: %w", err)
	}
	if strings.TrimSpace(doc.AccessToken) == "" {
		return "", ErrNoCredentials
	}
	return doc.AccessToken, nil
}

// Identity extracts the subject claim used to address the push channel.
// The token is not verified here; the backend does that on every request.
func Identity(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("token subject: %w", err)
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
