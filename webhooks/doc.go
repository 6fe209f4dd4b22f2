// Package webhooks answers CRC handshakes and verifies the HMAC-SHA256
// signature carried by inbound account activity requests. The functions here
// need no controller, so hosts running their own HTTP server can use them
// directly.
package webhooks
