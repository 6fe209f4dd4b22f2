package query

const (
	TypeGetWebhooks       = "autohook.query.webhooks.list"
	TypeSubscriptionCount = "autohook.query.subscriptions.count"
)

type GetWebhooksMessage struct{}

func (GetWebhooksMessage) Type() string { return TypeGetWebhooks }

func (GetWebhooksMessage) Validate() error { return nil }

type SubscriptionCountMessage struct{}

func (SubscriptionCountMessage) Type() string { return TypeSubscriptionCount }

func (SubscriptionCountMessage) Validate() error { return nil }
