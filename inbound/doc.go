// Package inbound serves the webhook route. Every request is buffered in
// full and signature-verified before it is answered: CRC handshakes get a
// response token, and POST bodies are parsed and fanned out to registered
// event handlers in registration order.
package inbound
