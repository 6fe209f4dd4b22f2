// Package auth signs outbound requests with OAuth 1.0a HMAC-SHA1 user
// credentials and exchanges the app consumer pair for app-only bearer tokens.
package auth
