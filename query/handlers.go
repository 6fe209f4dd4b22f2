package query

import (
	"context"

	"github.com/goliatone/go-autohook/core"
)

type WebhookReader interface {
	GetWebhooks(ctx context.Context) ([]core.Webhook, error)
}

type SubscriptionCountReader interface {
	SubscriptionCount(ctx context.Context) (core.SubscriptionCount, error)
}

type GetWebhooksQuery struct {
	reader WebhookReader
}

func NewGetWebhooksQuery(reader WebhookReader) *GetWebhooksQuery {
	return &GetWebhooksQuery{reader: reader}
}

func (q *GetWebhooksQuery) Query(ctx context.Context, _ GetWebhooksMessage) ([]core.Webhook, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: webhook reader is required")
	}
	return q.reader.GetWebhooks(ctx)
}

// SubscriptionCountQuery serves the cached count, fetching it on first use.
type SubscriptionCountQuery struct {
	reader SubscriptionCountReader
}

func NewSubscriptionCountQuery(reader SubscriptionCountReader) *SubscriptionCountQuery {
	return &SubscriptionCountQuery{reader: reader}
}

func (q *SubscriptionCountQuery) Query(ctx context.Context, _ SubscriptionCountMessage) (core.SubscriptionCount, error) {
	if q == nil || q.reader == nil {
		return core.SubscriptionCount{}, queryDependencyError("query: subscription count reader is required")
	}
	return q.reader.SubscriptionCount(ctx)
}
