package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-autohook/core"
)

var (
	_ gocmd.Querier[GetWebhooksMessage, []core.Webhook]               = (*GetWebhooksQuery)(nil)
	_ gocmd.Querier[SubscriptionCountMessage, core.SubscriptionCount] = (*SubscriptionCountQuery)(nil)
)
