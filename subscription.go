package autohook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-autohook/core"
	"github.com/goliatone/go-autohook/transport"
)

const (
	verifyCredentialsPath  = "/1.1/account/verify_credentials.json"
	subscriptionsCountPath = accountActivityPath + "/subscriptions/count.json"
)

func subscriptionsPath(env string) string {
	return accountActivityPath + "/" + url.PathEscape(env) + "/subscriptions.json"
}

func subscriptionPath(env, userID string) string {
	return accountActivityPath + "/" + url.PathEscape(env) + "/subscriptions/" + url.PathEscape(userID) + ".json"
}

// Subscribe subscribes the app to the activity of the user owning userAuth.
// The screen name is looked up when not given. When the cached count shows
// the plan is exhausted no request is sent.
func (a *Autohook) Subscribe(ctx context.Context, userAuth core.UserAuth) (core.UserIdentity, error) {
	startedAt := time.Now()
	fields := map[string]any{}
	identity, err := a.subscribe(ctx, userAuth, fields)
	a.observe(ctx, startedAt, "subscribe", err, fields)
	return identity, err
}

func (a *Autohook) subscribe(ctx context.Context, userAuth core.UserAuth, fields map[string]any) (core.UserIdentity, error) {
	user, err := a.app.ForUser(userAuth)
	if err != nil {
		return core.UserIdentity{}, err
	}

	identity := core.UserIdentity{ScreenName: strings.TrimSpace(userAuth.ScreenName)}
	if identity.ScreenName == "" {
		identity, err = a.verifyCredentials(ctx, user)
		if err != nil {
			return core.UserIdentity{}, err
		}
	}
	fields["screen_name"] = identity.ScreenName
	if identity.ID != "" {
		fields["user_id"] = identity.ID
	}

	count, err := a.subscriptionCount(ctx)
	if err != nil {
		return core.UserIdentity{}, err
	}
	if count.Exhausted() {
		guard := core.NewError(core.KindTooManySubscriptions, fmt.Sprintf(
			"Cannot subscribe to %s's activities: you exceeded the number of subscriptions available to you. "+
				"Please remove at least a subscription or upgrade your premium access at https://developer.twitter.com/apps.",
			identity.ScreenName,
		))
		return core.UserIdentity{}, guard
	}

	if _, err := a.call(ctx, transport.Call{
		Method: http.MethodPost,
		Path:   subscriptionsPath(a.config.Env),
		User:   &user,
	}, core.KindUserSubscription); err != nil {
		var rich *core.Error
		if goerrors.As(err, &rich) && rich.UpstreamCode == core.UpstreamCodeTooManySubscriptions {
			rich.Kind = core.KindTooManySubscriptions
		}
		return core.UserIdentity{}, err
	}
	a.adjustSubscriptionCount(1)
	return identity, nil
}

func (a *Autohook) verifyCredentials(ctx context.Context, user core.Credential) (core.UserIdentity, error) {
	res, err := a.call(ctx, transport.Call{
		Method: http.MethodGet,
		Path:   verifyCredentialsPath,
		User:   &user,
	}, core.KindUserSubscription)
	if err != nil {
		return core.UserIdentity{}, core.WrapError(err, core.KindUserSubscription, "autohook: could not resolve the user's screen name")
	}
	var identity core.UserIdentity
	if err := json.Unmarshal(res.Body, &identity); err != nil {
		return core.UserIdentity{}, core.WrapError(err, core.KindUserSubscription, "autohook: credential response is not json")
	}
	if strings.TrimSpace(identity.ScreenName) == "" {
		return core.UserIdentity{}, core.NewError(core.KindUserSubscription, "autohook: credential response has no screen_name")
	}
	return identity, nil
}

// Unsubscribe removes the subscription of userID.
func (a *Autohook) Unsubscribe(ctx context.Context, userID string) error {
	startedAt := time.Now()
	userID = strings.TrimSpace(userID)
	err := a.unsubscribe(ctx, userID)
	a.observe(ctx, startedAt, "unsubscribe", err, map[string]any{"user_id": userID})
	return err
}

func (a *Autohook) unsubscribe(ctx context.Context, userID string) error {
	if userID == "" {
		return core.NewError(core.KindTypeConstraint, "autohook: user id is required")
	}
	if _, err := a.call(ctx, transport.Call{
		Method: http.MethodDelete,
		Path:   subscriptionPath(a.config.Env, userID),
		Bearer: true,
	}, core.KindUserSubscription); err != nil {
		return err
	}
	a.adjustSubscriptionCount(-1)
	return nil
}

// SubscriptionCount returns the cached subscription count, fetching it on
// first use.
func (a *Autohook) SubscriptionCount(ctx context.Context) (core.SubscriptionCount, error) {
	startedAt := time.Now()
	count, err := a.subscriptionCount(ctx)
	a.observe(ctx, startedAt, "subscription_count", err, map[string]any{
		"subscriptions_count": count.SubscriptionsCount,
		"provisioned_count":   count.ProvisionedCount,
	})
	return count, err
}

func (a *Autohook) subscriptionCount(ctx context.Context) (core.SubscriptionCount, error) {
	a.countMu.Lock()
	if a.count != nil {
		count := *a.count
		a.countMu.Unlock()
		return count, nil
	}
	a.countMu.Unlock()

	res, err := a.call(ctx, transport.Call{
		Method: http.MethodGet,
		Path:   subscriptionsCountPath,
		Bearer: true,
	}, core.KindUserSubscription)
	if err != nil {
		return core.SubscriptionCount{}, err
	}
	var count core.SubscriptionCount
	if err := json.Unmarshal(res.Body, &count); err != nil {
		return core.SubscriptionCount{}, core.WrapError(err, core.KindUserSubscription, "autohook: subscription count response is not json")
	}

	a.countMu.Lock()
	if a.count == nil {
		a.count = &count
	}
	cached := *a.count
	a.countMu.Unlock()
	return cached, nil
}

func (a *Autohook) adjustSubscriptionCount(delta int) {
	a.countMu.Lock()
	defer a.countMu.Unlock()
	if a.count == nil {
		return
	}
	next := a.count.SubscriptionsCount + delta
	if next < 0 {
		next = 0
	}
	a.count.SubscriptionsCount = next
}
