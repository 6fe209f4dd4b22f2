package autohook

import "github.com/goliatone/go-autohook/core"

type Config = core.Config

type Credential = core.Credential

type Webhook = core.Webhook

type SubscriptionCount = core.SubscriptionCount

type UserAuth = core.UserAuth

type UserIdentity = core.UserIdentity

type Event = core.Event

type EventHandler = core.EventHandler

type Error = core.Error

type ErrorKind = core.ErrorKind

const (
	KindAuthentication       = core.KindAuthentication
	KindRateLimit            = core.KindRateLimit
	KindWebhookURI           = core.KindWebhookURI
	KindTooManyWebhooks      = core.KindTooManyWebhooks
	KindUserSubscription     = core.KindUserSubscription
	KindTooManySubscriptions = core.KindTooManySubscriptions
	KindBearerToken          = core.KindBearerToken
	KindTypeConstraint       = core.KindTypeConstraint
	KindMissingHeader        = core.KindMissingHeader
	KindGeneric              = core.KindGeneric
)

var (
	KindOf = core.KindOf
	IsKind = core.IsKind
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}
