package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"gopkg.in/yaml.v3"

	autohook "github.com/goliatone/go-autohook"
	"github.com/goliatone/go-autohook/adapters/gocommand"
	"github.com/goliatone/go-autohook/adapters/gojob"
	"github.com/goliatone/go-autohook/adapters/gologger"
	autohookcommand "github.com/goliatone/go-autohook/command"
	"github.com/goliatone/go-autohook/core"
	"github.com/goliatone/go-autohook/inbound"
	"github.com/goliatone/go-autohook/transport"
)

const queueResolverKey = "autohook.queue"

type options struct {
	configPath  string
	token       string
	secret      string
	consumerKey string
	consumerSec string
	env         string
	port        int
	webhookURL  string
	publicURL   string
	screenName  string
	keep        bool
	debug       bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "autohook: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "autohook: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("autohook", flag.ContinueOnError)
	opts := options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	fs.StringVar(&opts.token, "t", os.Getenv("TWITTER_ACCESS_TOKEN"), "Your OAuth access token (env TWITTER_ACCESS_TOKEN)")
	fs.StringVar(&opts.secret, "s", os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"), "Your OAuth access token secret (env TWITTER_ACCESS_TOKEN_SECRET)")
	fs.StringVar(&opts.consumerKey, "k", os.Getenv("TWITTER_CONSUMER_KEY"), "Your consumer key (env TWITTER_CONSUMER_KEY)")
	fs.StringVar(&opts.consumerSec, "c", os.Getenv("TWITTER_CONSUMER_SECRET"), "Your consumer secret (env TWITTER_CONSUMER_SECRET)")
	fs.StringVar(&opts.env, "e", os.Getenv("TWITTER_WEBHOOK_ENV"), "Your webhook environment label (env TWITTER_WEBHOOK_ENV)")
	fs.IntVar(&opts.port, "p", envInt("PORT"), "Port for the local webhook listener (env PORT)")
	fs.StringVar(&opts.webhookURL, "url", "", "Register this https webhook URL instead of exposing the listener")
	fs.StringVar(&opts.publicURL, "public-url", os.Getenv("AUTOHOOK_PUBLIC_URL"), "Public https base URL that forwards to the local listener")
	fs.StringVar(&opts.screenName, "screen-name", "", "Screen name of the subscribing user, skips the credential lookup")
	fs.BoolVar(&opts.keep, "keep", false, "Keep existing webhooks instead of removing them first")
	fs.BoolVar(&opts.debug, "debug", false, "Log debug messages")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.webhookURL == "" && opts.publicURL == "" {
		return options{}, fmt.Errorf("either -url or -public-url is required")
	}
	return opts, nil
}

func envInt(key string) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

func loadFile(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return raw, nil
}

func run(opts options) error {
	raw, err := loadFile(opts.configPath)
	if err != nil {
		return err
	}

	logger := newLogger(opts.debug)
	hookOpts := gologger.ControllerOptions(nil, logger)
	hookOpts = append(hookOpts,
		autohook.WithConfigProvider(core.NewCfgxConfigProvider(core.StaticConfigLoader(raw))),
		autohook.WithTransport(transport.NewRESTAdapter(nil)),
	)
	if opts.publicURL != "" {
		hookOpts = append(hookOpts, autohook.WithTunnel(transport.StaticTunnel{URL: opts.publicURL}))
	}

	hook, err := autohook.New(core.Config{
		Token:          opts.token,
		TokenSecret:    opts.secret,
		ConsumerKey:    opts.consumerKey,
		ConsumerSecret: opts.consumerSec,
		Env:            opts.env,
		Port:           opts.port,
	}, hookOpts...)
	if err != nil {
		return err
	}

	facade, err := autohook.NewFacade(hook)
	if err != nil {
		return err
	}
	bus := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := gocommand.RegisterFacade(bus, facade)
	if err != nil {
		return err
	}
	defer gocommand.Unsubscribe(subscriptions)
	if err := bus.Initialize(); err != nil {
		return err
	}
	startupJobs, err := newJobRunner(facade, logger)
	if err != nil {
		return err
	}

	unsubscribe, err := hook.On(func(_ context.Context, event core.Event, _ *http.Request) error {
		logger.Info("activity event", "event_id", event.ID, "body", event.Body)
		return nil
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !opts.keep {
		if err := startupJobs.run(ctx, autohookcommand.RemoveWebhooksMessage{}); err != nil {
			return err
		}
	}
	// With an explicit url the controller does not listen, so serve the
	// webhook route here before registering so the CRC check can reach it.
	if opts.webhookURL != "" {
		listener := inbound.NewHTTPListener(logger)
		if err := listener.Listen(ctx, hook.Config().Port, hook.Handler()); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = listener.Shutdown(shutdownCtx)
		}()
	}
	if err := gocommand.Dispatch(ctx, autohookcommand.StartMessage{WebhookURL: opts.webhookURL}); err != nil {
		return err
	}
	if err := gocommand.Dispatch(ctx, autohookcommand.SubscribeMessage{Auth: core.UserAuth{
		AccessToken:       hook.Config().Token,
		AccessTokenSecret: hook.Config().TokenSecret,
		ScreenName:        opts.screenName,
	}}); err != nil {
		return err
	}
	if webhook, ok := hook.Webhook(); ok {
		logger.Info("listening for activity", "webhook_id", webhook.ID, "url", webhook.URL)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hook.Close(shutdownCtx)
}

// jobRunner runs queueable lifecycle commands through a go-job worker.
type jobRunner struct {
	queue  *gojob.MemoryQueue
	worker *gojob.Worker
}

func newJobRunner(facade *autohook.Facade, logger glog.Logger) (*jobRunner, error) {
	jobs := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := jobs.AddQueueResolver(queueResolverKey, jobqueuecommand.NewRegistry()); err != nil {
		return nil, err
	}
	if err := gojob.RegisterJobCommands(jobs, facade); err != nil {
		return nil, err
	}
	if err := jobs.Initialize(); err != nil {
		return nil, err
	}
	_, _, _, jobLogger := gologger.ResolveForJob(gologger.DefaultLoggerName, nil, logger)
	queue := gojob.NewMemoryQueue(0)
	worker, err := gojob.NewWorker(gojob.WorkerConfig{
		Dequeuer: queue,
		Registry: jobs.Queues(),
		Policy:   gojob.RetryPolicy{MaxAttempts: 1, DeadLetterOnMax: true},
		Logger:   jobLogger,
	})
	if err != nil {
		return nil, err
	}
	return &jobRunner{queue: queue, worker: worker}, nil
}

// run enqueues msg and works it off before returning its result.
func (r *jobRunner) run(ctx context.Context, msg any) error {
	encoded, err := gojob.ToExecutionMessage(msg)
	if err != nil {
		return err
	}
	if err := r.queue.Enqueue(ctx, encoded); err != nil {
		return err
	}
	return r.worker.RunOnce(ctx)
}
