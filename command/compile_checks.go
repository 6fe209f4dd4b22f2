package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[StartMessage]          = (*StartCommand)(nil)
	_ gocmd.Commander[RemoveWebhookMessage]  = (*RemoveWebhookCommand)(nil)
	_ gocmd.Commander[RemoveWebhooksMessage] = (*RemoveWebhooksCommand)(nil)
	_ gocmd.Commander[SubscribeMessage]      = (*SubscribeCommand)(nil)
	_ gocmd.Commander[UnsubscribeMessage]    = (*UnsubscribeCommand)(nil)
)
