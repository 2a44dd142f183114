package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rabbitmq/amqp091-go"

	"github.com/jiaulislam/order.ticketing.dev/internal/auth"
	"github.com/jiaulislam/order.ticketing.dev/internal/clock"
	"github.com/jiaulislam/order.ticketing.dev/internal/config"
	"github.com/jiaulislam/order.ticketing.dev/internal/events"
	"github.com/jiaulislam/order.ticketing.dev/internal/httpapi"
	"github.com/jiaulislam/order.ticketing.dev/internal/messaging"
	"github.com/jiaulislam/order.ticketing.dev/internal/order"
	"github.com/jiaulislam/order.ticketing.dev/internal/reaper"
	"github.com/jiaulislam/order.ticketing.dev/internal/storage"
	"github.com/jiaulislam/order.ticketing.dev/internal/websocket"
)

type App struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	orderSvc  *order.Service
	router    *events.Router
	reaper    *reaper.Reaper
	wsHub     *websocket.Hub
	publisher messaging.Publisher
	consumer  *messaging.Consumer
	httpSrv   *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	orderStore := storage.NewOrderStore(store.Pool())
	ticketStore := storage.NewTicketStore(store.Pool())

	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.OrderEventsExchange)
	if err != nil {
		store.Close()
		return nil, err
	}

	consumer, err := messaging.NewRabbitConsumer(
		cfg.RabbitURL,
		cfg.TicketEventsExchange,
		cfg.TicketEventsQueue,
		[]string{"ticket.*"},
		logger,
	)
	if err != nil {
		store.Close()
		publisher.Close()
		return nil, err
	}

	clk := clock.NewSystem()
	wsHub := websocket.NewHub()

	orderSvc := order.NewService(
		orderStore,
		ticketStore,
		publisher,
		clk,
		logger,
		order.WithReservationTTL(cfg.ReservationTTL),
		order.WithNotifier(wsHub),
	)

	router := events.NewRouter(ticketStore, logger)
	rpr := reaper.New(orderStore, publisher, clk, cfg.ReaperInterval, logger).WithNotifier(wsHub)

	verifier := auth.NewVerifier(cfg.JWTKey)
	api := httpapi.NewServer(orderSvc, verifier, logger)
	wsHandler := websocket.NewHandler(wsHub, orderSvc, verifier)
	api.HandleFunc("GET /api/v1/orders/{orderID}/ws", wsHandler.ServeWS)

	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api,
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		orderSvc:  orderSvc,
		router:    router,
		reaper:    rpr,
		wsHub:     wsHub,
		publisher: publisher,
		consumer:  consumer,
		httpSrv:   httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	a.reaper.Start(ctx)

	go a.wsHub.Run(ctx)

	go func() {
		errCh <- a.consumer.Start(ctx, a.handleTicketMessage)
	}()

	go func() {
		a.logger.Info("order service listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownGracePeriod)
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	a.consumer.Close()
	a.publisher.Close()
	a.store.Close()
}

// handleTicketMessage feeds one delivery through the dispatch router. Every
// message is acked: unknown topics and handler failures are logged and the
// loop moves on, so one bad event can never wedge the consumer.
func (a *App) handleTicketMessage(ctx context.Context, msg amqp091.Delivery) {
	topic := msg.RoutingKey
	if topic == "" {
		topic = msg.Type
	}

	if err := a.router.Dispatch(ctx, topic, msg.Body); err != nil {
		a.logger.Error("handle ticket event", "topic", topic, "err", err)
	}
	_ = msg.Ack(false)
}

func Run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	if err := app.Run(ctx); err != nil {
		return err
	}

	return nil
}
