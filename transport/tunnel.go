package transport

import (
	"context"
	"strings"

	"github.com/goliatone/go-autohook/core"
)

// StaticTunnel hands out a public URL that was provisioned out of band, for
// example by a reverse proxy or a tunnel started by hand.
type StaticTunnel struct {
	URL string
}

func (t StaticTunnel) ExposePort(_ context.Context, _ int, _ string) (string, error) {
	publicURL := strings.TrimRight(strings.TrimSpace(t.URL), "/")
	if publicURL == "" {
		return "", core.NewError(core.KindTypeConstraint, "transport: static tunnel url is not set")
	}
	return publicURL, nil
}

var _ core.Tunnel = StaticTunnel{}
