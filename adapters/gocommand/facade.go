package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"

	autohook "github.com/goliatone/go-autohook"
	autohookcommand "github.com/goliatone/go-autohook/command"
	"github.com/goliatone/go-autohook/core"
	autohookquery "github.com/goliatone/go-autohook/query"
)

// RegisterFacade registers and subscribes every command and query of the
// facade. On failure the subscriptions made so far are released.
func RegisterFacade(
	adapter *RegistryAdapter,
	facade *autohook.Facade,
	runnerOpts ...runner.Option,
) ([]commanddispatcher.Subscription, error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: facade is required")
	}
	commands := facade.Commands()
	queries := facade.Queries()

	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[autohookcommand.StartMessage](adapter, commands.Start, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[autohookcommand.RemoveWebhookMessage](adapter, commands.RemoveWebhook, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[autohookcommand.RemoveWebhooksMessage](adapter, commands.RemoveWebhooks, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[autohookcommand.SubscribeMessage](adapter, commands.Subscribe, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[autohookcommand.UnsubscribeMessage](adapter, commands.Unsubscribe, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[autohookquery.GetWebhooksMessage, []core.Webhook](adapter, queries.GetWebhooks, runnerOpts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[autohookquery.SubscriptionCountMessage, core.SubscriptionCount](adapter, queries.SubscriptionCount, runnerOpts...)
		},
	}

	subscriptions := make([]commanddispatcher.Subscription, 0, len(steps))
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			Unsubscribe(subscriptions)
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, nil
}
