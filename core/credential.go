package core

import (
	"fmt"
	"strings"
)

// Credential is an OAuth 1.0a consumer/token pair. Values are validated when
// the credential is built and never mutated afterwards.
type Credential struct {
	consumerKey       string
	consumerSecret    string
	accessToken       string
	accessTokenSecret string
}

func NewCredential(consumerKey, consumerSecret, accessToken, accessTokenSecret string) (Credential, error) {
	fields := []struct {
		name  string
		value string
	}{
		{name: "consumer_key", value: consumerKey},
		{name: "consumer_secret", value: consumerSecret},
		{name: "access_token", value: accessToken},
		{name: "access_token_secret", value: accessTokenSecret},
	}
	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			return Credential{}, NewError(KindTypeConstraint, fmt.Sprintf("core: credential %s is required", field.name))
		}
	}
	return Credential{
		consumerKey:       consumerKey,
		consumerSecret:    consumerSecret,
		accessToken:       accessToken,
		accessTokenSecret: accessTokenSecret,
	}, nil
}

// ForUser derives a credential that keeps the app consumer pair and swaps in
// the access token of another user.
func (c Credential) ForUser(auth UserAuth) (Credential, error) {
	return NewCredential(c.consumerKey, c.consumerSecret, auth.AccessToken, auth.AccessTokenSecret)
}

func (c Credential) ConsumerKey() string { return c.consumerKey }

func (c Credential) ConsumerSecret() string { return c.consumerSecret }

func (c Credential) AccessToken() string { return c.accessToken }

func (c Credential) AccessTokenSecret() string { return c.accessTokenSecret }

func (c Credential) IsZero() bool {
	return c.consumerKey == "" && c.consumerSecret == "" && c.accessToken == "" && c.accessTokenSecret == ""
}

// String never prints secrets.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{consumer_key=%s, access_token=%s}", redact(c.consumerKey), redact(c.accessToken))
}

func redact(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return value[:4] + "****"
}
