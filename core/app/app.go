package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/slicework/choreo-go/adapters/amqp"
	"github.com/slicework/choreo-go/core/envelope"
	"github.com/slicework/choreo-go/core/events"
	"github.com/slicework/choreo-go/core/metrics"
	"github.com/slicework/choreo-go/core/route"
)

type Config struct {
	Context context.Context
	Log     *slog.Logger
	// Service names the queue set (<service>-queue and friends). Required.
	Service string
	// Connect defaults to AMQP_URL or the local broker.
	Connect amqp.Connector
	// Bindings are the routing keys the work queue subscribes to. Defaults
	// to every known event key.
	Bindings []string
	// Registry defaults to the full event registry.
	Registry *envelope.Registry
	RetryTTL time.Duration
	Metrics  metrics.Messaging
}

type App struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	log       *slog.Logger
	connect   amqp.Connector
	top       amqp.Topology
	router    *route.Router
	pub       *amqp.Publisher
	metrics   metrics.Messaging
	group     *errgroup.Group
}

func New(config Config) (app *App, err error) {
	if config.Service == "" {
		return nil, errors.New("app: service name is required")
	}

	// === logger ===
	if config.Log == nil {
		config.Log = slog.Default()
	}
	log := config.Log.With(
		slog.String("service", config.Service),
		slog.String("instance", fmt.Sprintf("%s-%s", config.Service, gonanoid.Must(6))),
	)

	// === context ===
	if config.Context == nil {
		config.Context = context.Background()
	}

	// === transport config ===
	connect := config.Connect
	if connect == nil {
		connect = amqp.ConnectDefault()
	}
	connect = amqp.ReuseConnection(connect)

	bindings := config.Bindings
	if len(bindings) == 0 {
		bindings = events.AllKeys()
	}
	top := amqp.ForService(config.Service, bindings...)
	if config.RetryTTL != 0 {
		top.RetryTTL = config.RetryTTL
	}

	registry := config.Registry
	if registry == nil {
		registry = events.NewRegistry()
	}

	m := config.Metrics
	if m == nil {
		m = metrics.NopMessaging()
	}

	pub, err := amqp.NewPublisher(amqp.PublisherConfig{
		Log:      log,
		Channels: amqp.Channels(connect),
		Topology: top,
		Metrics:  m,
	})
	if err != nil {
		return nil, err
	}

	app = &App{
		log:     log,
		connect: connect,
		top:     top,
		router:  route.NewRouter(log, registry),
		pub:     pub,
		metrics: m,
	}
	app.ctx, app.cancelCtx = context.WithCancel(config.Context)

	return app, nil
}

// Publisher is the outbound side, safe to share across handlers.
func (a *App) Publisher() events.Publisher { return a.pub }

// Router registers inbound handlers. Register before Run.
func (a *App) Router() *route.Router { return a.router }

// Run declares the topology and starts consuming. It returns once the
// consumer loop is running; use Wait to block until shutdown.
func (a *App) Run() error {
	if err := a.declare(); err != nil {
		return err
	}

	consumer, err := amqp.NewConsumer(amqp.ConsumerConfig{
		Log:        a.log,
		Source:     amqp.NewQueueSource(a.connect, a.top),
		Handler:    a.handle,
		DeadLetter: amqp.NewDeadLetterer(amqp.Channels(a.connect), a.top),
		Queue:      a.top.WorkQueue,
		Metrics:    a.metrics,
	})
	if err != nil {
		return err
	}

	a.group = new(errgroup.Group)
	a.group.Go(func() error {
		return consumer.Run(a.ctx)
	})

	a.log.Info("app started", slog.String("queue", a.top.WorkQueue))
	return nil
}

// Stop cancels the consumer and blocks until it drains.
func (a *App) Stop() {
	a.cancelCtx()
	if a.group != nil {
		_ = a.group.Wait()
	}
}

// Wait blocks until the consumer stops. Returns nil on clean shutdown.
func (a *App) Wait() error {
	if a.group == nil {
		return nil
	}
	err := a.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) declare() error {
	nc, closeConn, err := a.connect()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer closeConn()
	ch, err := nc.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()
	return a.top.Declare(ch)
}

func (a *App) handle(ctx context.Context, body []byte, correlationID string) error {
	env, err := envelope.Decode(body)
	if err != nil {
		return err
	}
	return a.router.Route(ctx, env, correlationID)
}

func Run(config Config) (app *App, err error) {
	app, err = New(config)
	if err != nil {
		return nil, err
	}

	err = app.Run()
	if err != nil {
		return nil, err
	}

	return app, nil
}
