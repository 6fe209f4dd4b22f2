package autohook

import (
	"fmt"

	autohookcommand "github.com/goliatone/go-autohook/command"
	autohookquery "github.com/goliatone/go-autohook/query"
)

type CommandQueryService interface {
	autohookcommand.MutatingService
	autohookquery.WebhookReader
	autohookquery.SubscriptionCountReader
}

type Commands struct {
	Start          *autohookcommand.StartCommand
	RemoveWebhook  *autohookcommand.RemoveWebhookCommand
	RemoveWebhooks *autohookcommand.RemoveWebhooksCommand
	Subscribe      *autohookcommand.SubscribeCommand
	Unsubscribe    *autohookcommand.UnsubscribeCommand
}

type Queries struct {
	GetWebhooks       *autohookquery.GetWebhooksQuery
	SubscriptionCount *autohookquery.SubscriptionCountQuery
}

// Facade exposes the controller as go-command commanders and queriers.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("autohook: command/query service is required")
	}
	facade := &Facade{service: service}
	facade.commands = Commands{
		Start:          autohookcommand.NewStartCommand(service),
		RemoveWebhook:  autohookcommand.NewRemoveWebhookCommand(service),
		RemoveWebhooks: autohookcommand.NewRemoveWebhooksCommand(service),
		Subscribe:      autohookcommand.NewSubscribeCommand(service),
		Unsubscribe:    autohookcommand.NewUnsubscribeCommand(service),
	}
	facade.queries = Queries{
		GetWebhooks:       autohookquery.NewGetWebhooksQuery(service),
		SubscriptionCount: autohookquery.NewSubscriptionCountQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Autohook)(nil)
