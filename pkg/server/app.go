package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TrendEngine/internal/engine/risk"
	"TrendEngine/internal/engine/strategy"
	"TrendEngine/internal/usecase"
	pkgch "TrendEngine/pkg/clickhouse"
	"TrendEngine/pkg/config"
	xhttp "TrendEngine/pkg/http"
	pkgkafka "TrendEngine/pkg/kafka"
	applogger "TrendEngine/pkg/logger"
	"TrendEngine/pkg/queue"
)

// App encapsulates the entire application lifecycle: market feed, decision
// engine, risk monitoring, command consumer, alert queue and the ops API.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	collector *usecase.BarCollector
	processor *usecase.BarProcessor
	engine    *strategy.Engine
	riskMgr   *risk.Manager
	possync   *usecase.PositionSync

	consumer *pkgkafka.Consumer
	commands pkgkafka.MessageHandler
	producer *pkgkafka.Producer
	alerts   *queue.RedisQueue
	chClient *pkgch.Client

	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates the application around its core collaborators. Optional
// infrastructure is attached with the setters below.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.BarCollector,
	processor *usecase.BarProcessor,
	engine *strategy.Engine,
	riskMgr *risk.Manager,
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		collector: collector,
		processor: processor,
		engine:    engine,
		riskMgr:   riskMgr,
	}
}

// SetHTTPHandler injects the ops API handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetPositionSync attaches the exchange position reconciler.
func (a *App) SetPositionSync(s *usecase.PositionSync) { a.possync = s }

// SetKafka attaches the command consumer and the event producer.
func (a *App) SetKafka(consumer *pkgkafka.Consumer, commands pkgkafka.MessageHandler, producer *pkgkafka.Producer) {
	a.consumer = consumer
	a.commands = commands
	a.producer = producer
}

// SetAlertConsumer attaches the Redis-backed alert delivery queue.
func (a *App) SetAlertConsumer(q *queue.RedisQueue) { a.alerts = q }

// SetClickHouse attaches the history store client for shutdown.
func (a *App) SetClickHouse(c *pkgch.Client) { a.chClient = c }

// Run starts every component and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	a.engine.StartBatchProcessor(ctx)
	a.riskMgr.StartMonitoring(ctx, a.engine.LastPrice)

	// adopt whatever the exchange says is open before the first bar arrives
	if a.possync != nil {
		a.possync.Start(ctx)
	}

	if err := a.collector.Start(ctx); err != nil {
		a.log.Error("collector start failed", applogger.Error(err))
		return err
	}
	a.log.Info("bar collector started",
		applogger.Strings("symbols", a.cfg.Strategy.SymbolList()),
		applogger.String("timeframe", a.cfg.Binance.Timeframe))

	if a.consumer != nil && a.commands != nil {
		a.consumer.RegisterHandler(a.commands)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("command consumer started", applogger.String("topic", a.commands.Topic()))
	}

	if a.alerts != nil {
		if err := a.alerts.Start(); err != nil {
			a.log.Error("alert queue start failed", applogger.Error(err))
		} else {
			a.log.Info("alert queue consumer started")
			// ship aggregated error logs through the same queue, deduplicated
			// so an exchange outage doesn't flood the channel
			a.log.AddCollector(&applogger.CollectionConfig{
				TimeInterval:   30 * time.Second,
				CountThreshold: 100,
				Topic:          "log.errors",
				Publisher:      a.alerts,
			})
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("ops api listening", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

// shutdown stops components in dependency order: feed first so no new bars
// arrive, then the engine drains, then stores and servers close.
func (a *App) shutdown(ctx context.Context) error {
	if err := a.collector.Shutdown(ctx); err != nil {
		a.log.Warn("collector stop error", applogger.Error(err))
	}

	a.engine.Wait()

	if err := a.processor.Flush(ctx); err != nil {
		a.log.Warn("bar flush error", applogger.Error(err))
	}

	a.riskMgr.StopMonitoring()
	if a.possync != nil {
		a.possync.Stop()
	}
	a.log.RemoveCollector()

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.alerts != nil {
		if err := a.alerts.Stop(ctx); err != nil {
			a.log.Warn("alert queue stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
