// Package transport sends authenticated calls to the remote API. Client
// picks bearer or OAuth 1.0a auth per call; RESTAdapter is the net/http
// backed core.Transport.
package transport
