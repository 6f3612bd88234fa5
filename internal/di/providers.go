package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	drepo "TrendEngine/internal/domain/repository"
	"TrendEngine/internal/domain/service"
	"TrendEngine/internal/engine/filter"
	"TrendEngine/internal/engine/orderbook"
	"TrendEngine/internal/engine/position"
	"TrendEngine/internal/engine/risk"
	"TrendEngine/internal/engine/score"
	"TrendEngine/internal/engine/strategy"
	"TrendEngine/internal/engine/trend"
	"TrendEngine/internal/handler/api"
	mid "TrendEngine/internal/middleware"
	internalrepo "TrendEngine/internal/repository"
	"TrendEngine/internal/service/binance"
	"TrendEngine/internal/service/indicator"
	"TrendEngine/internal/service/mlvalidator"
	"TrendEngine/internal/service/notify"
	"TrendEngine/internal/usecase"
	pkgcache "TrendEngine/pkg/cache"
	pkgch "TrendEngine/pkg/clickhouse"
	"TrendEngine/pkg/config"
	xhttp "TrendEngine/pkg/http"
	pkgkafka "TrendEngine/pkg/kafka"
	"TrendEngine/pkg/logger"
	"TrendEngine/pkg/metrics"
	"TrendEngine/pkg/queue"
	"TrendEngine/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideClock returns the wall clock. Replay builds its own simulated one.
func ProvideClock() service.Clock {
	return service.WallClock{}
}

// ProvideIndicators creates the indicator engine.
func ProvideIndicators() service.IndicatorEngine {
	return indicator.New()
}

// ProvideRedisClient creates the shared Redis client, nil when disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideReportCache creates the backtest report cache: Redis-backed when
// Redis is enabled, otherwise in-process memory.
func ProvideReportCache(cfg *config.Config) pkgcache.Service {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache()
	}
	host, portStr, err := net.SplitHostPort(cfg.Redis.Addr)
	if err != nil {
		return pkgcache.NewMemoryCache()
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return pkgcache.NewMemoryCache()
	}
	c, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("trend"),
	)
	if err != nil {
		return pkgcache.NewMemoryCache()
	}
	return c
}

// ProvideClickHouseClient creates the history store client, nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideTradeHistory creates the trade/candle store and its schema.
// Returns nil when ClickHouse is disabled; persistence callers nil-check.
func ProvideTradeHistory(client *pkgch.Client) (drepo.TradeHistory, error) {
	if client == nil {
		return nil, nil
	}
	h := internalrepo.NewClickHouseHistory(client)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return h, nil
}

// ProvideKafkaProducer creates the event producer, nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the command consumer, nil when Kafka is
// disabled.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideEventPublisher routes signal and trade events to Kafka, or drops
// them when Kafka is disabled.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) drepo.EventPublisher {
	if producer == nil {
		return internalrepo.NoopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.SignalTopic, cfg.Kafka.TradeTopic)
}

// ProvideNotifier creates alert delivery: queued through Redis when
// notifications are enabled, otherwise log-only.
func ProvideNotifier(cfg *config.Config, client *redis.Client, log *logger.Logger) drepo.Notifier {
	if !cfg.Notify.Enabled || client == nil {
		return &notify.LogNotifier{Log: log}
	}
	pub := queue.NewRedisPublisher(log, client, queue.WithKeyPrefix(cfg.Notify.QueueName))
	return notify.NewQueueNotifier(pub, log)
}

// ProvideAlertConsumer creates the Telegram delivery worker, nil when
// notifications are disabled.
func ProvideAlertConsumer(cfg *config.Config, client *redis.Client, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Notify.Enabled || client == nil {
		return nil
	}
	job := notify.NewTelegramJob(cfg.Notify.BotToken, cfg.Notify.ChatID,
		xhttp.NewClient(xhttp.WithTimeout(10*time.Second)), log)
	return queue.NewRedisConsumer(log, &queue.QueueConfig{Workers: 1}, client,
		[]queue.Job{job}, queue.WithKeyPrefix(cfg.Notify.QueueName))
}

// ProvideOrderBook creates the depth gate service.
func ProvideOrderBook(cfg *config.Config, log *logger.Logger) *orderbook.Service {
	return orderbook.NewService(cfg.OrderBook, log)
}

// ProvideMarketFeed creates the websocket kline feed.
func ProvideMarketFeed(cfg *config.Config, ob *orderbook.Service, log *logger.Logger) drepo.MarketFeed {
	return binance.NewStream(
		cfg.Binance.WebSocketURL,
		cfg.Binance.Timeframe,
		cfg.Binance.ReconnectDelay,
		cfg.Binance.PingInterval,
		cfg.Binance.DepthStream,
		ob,
		log,
	)
}

// ProvideExchangeGateway creates the REST execution gateway. It also serves
// higher-timeframe bars and hourly returns for the live gates.
func ProvideExchangeGateway(cfg *config.Config, log *logger.Logger) *binance.Gateway {
	client := xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	return binance.NewGateway(cfg.Binance.RESTURL, cfg.Binance.APIKey, cfg.Binance.APISecret, client, log)
}

// ProvideRiskManager creates the risk manager with every optional
// collaborator attached. The position store is late-bound in ProvideTracker.
func ProvideRiskManager(
	cfg *config.Config,
	gateway *binance.Gateway,
	ob *orderbook.Service,
	history drepo.TradeHistory,
	publisher drepo.EventPublisher,
	notifier drepo.Notifier,
	mtr drepo.Metrics,
	clock service.Clock,
	log *logger.Logger,
) *risk.Manager {
	correlation := risk.NewCorrelationGate(cfg.Correlation, gateway, clock, log)
	return risk.NewManager(cfg.Risk, gateway, correlation, clock, log,
		risk.WithDepthAdvisor(ob),
		risk.WithHistory(history),
		risk.WithPublisher(publisher),
		risk.WithNotifier(notifier),
		risk.WithMetrics(mtr),
	)
}

// ProvideTracker creates the position tracker and attaches it to the risk
// manager as its position store.
func ProvideTracker(cfg *config.Config, riskMgr *risk.Manager, clock service.Clock,
	mtr drepo.Metrics, log *logger.Logger) *position.Tracker {
	t := position.NewTracker(cfg.Position, riskMgr.Trailing(), clock, mtr, log)
	riskMgr.SetPositionStore(t)
	return t
}

// ProvideMacroCell creates the shared macro trend cell.
func ProvideMacroCell() *trend.MacroCell {
	return trend.NewMacroCell()
}

// ProvideSignalValidator creates the external model gate.
func ProvideSignalValidator(cfg *config.Config, log *logger.Logger) service.SignalValidator {
	return mlvalidator.New(cfg, log)
}

// ProvideStrategyEngine assembles the live decision pipeline.
func ProvideStrategyEngine(
	cfg *config.Config,
	riskMgr *risk.Manager,
	tracker *position.Tracker,
	macro *trend.MacroCell,
	ob *orderbook.Service,
	gateway *binance.Gateway,
	validator service.SignalValidator,
	publisher drepo.EventPublisher,
	ind service.IndicatorEngine,
	mtr drepo.Metrics,
	clock service.Clock,
	log *logger.Logger,
) *strategy.Engine {
	return strategy.NewEngine(cfg.Strategy, strategy.Deps{
		Chain:      filter.NewChain(log, mtr, filter.FromConfig(cfg.Filters)...),
		Scorer:     score.New(cfg.Score),
		Risk:       riskMgr,
		Tracker:    tracker,
		Macro:      macro,
		MacroAn:    trend.NewMacroAnalyzer(macro, ind, log),
		HTF:        trend.NewHTFService(cfg.HTF, gateway, clock, log),
		Depth:      ob,
		Validator:  validator,
		Indicators: ind,
		Gateway:    gateway,
		Publisher:  publisher,
		Metrics:    mtr,
		Clock:      clock,
		Log:        log,
	})
}

// ProvideBarProcessor creates the per-bar processor with default batching.
func ProvideBarProcessor(engine *strategy.Engine, history drepo.TradeHistory,
	mtr drepo.Metrics) *usecase.BarProcessor {
	return usecase.NewBarProcessor(engine, history, mtr, 0, 0)
}

// ProvideBarCollector wires the feed through the validation pipeline into
// the processor.
func ProvideBarCollector(cfg *config.Config, feed drepo.MarketFeed,
	processor *usecase.BarProcessor, mtr drepo.Metrics) *usecase.BarCollector {
	pipe := mid.NewBarPipeline(processor, mtr,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewBarCollector(feed, pipe, mtr, cfg.Strategy.SymbolList())
}

// ProvidePositionSync reconciles tracker state against the exchange at
// startup and on an interval.
func ProvidePositionSync(cfg *config.Config, tracker *position.Tracker,
	gateway *binance.Gateway, log *logger.Logger) *usecase.PositionSync {
	return usecase.NewPositionSync(tracker, gateway, cfg.Position.SyncInterval, log)
}

// ProvideCommandHandler creates the manual command consumer handler.
func ProvideCommandHandler(cfg *config.Config, riskMgr *risk.Manager,
	engine *strategy.Engine, mtr drepo.Metrics, log *logger.Logger) *usecase.CommandHandler {
	return usecase.NewCommandHandler(cfg.Kafka.CommandTopic, riskMgr, engine, mtr, log)
}

// ProvideBacktestRunner creates the replay runner for the ops API.
func ProvideBacktestRunner(cfg *config.Config, history drepo.TradeHistory,
	log *logger.Logger) usecase.BacktestRunner {
	return usecase.NewReplayRunner(cfg, history, log)
}

// ProvideStatusUseCase aggregates engine state for the ops API.
func ProvideStatusUseCase(
	riskMgr *risk.Manager,
	tracker *position.Tracker,
	engine *strategy.Engine,
	macro *trend.MacroCell,
	history drepo.TradeHistory,
	collector *usecase.BarCollector,
	runner usecase.BacktestRunner,
	reports pkgcache.Service,
) *usecase.StatusUseCase {
	return usecase.NewStatusUseCase(riskMgr, tracker, engine, macro, history, collector, runner, reports)
}

// ProvideHTTPHandler creates the ops API handler.
func ProvideHTTPHandler(log *logger.Logger, status *usecase.StatusUseCase) xhttp.Handler {
	return api.NewEngineEchoHandler(log, status)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	collector *usecase.BarCollector,
	processor *usecase.BarProcessor,
	engine *strategy.Engine,
	riskMgr *risk.Manager,
	possync *usecase.PositionSync,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	commands *usecase.CommandHandler,
	producer *pkgkafka.Producer,
	alerts *queue.RedisQueue,
	chClient *pkgch.Client,
) *server.App {
	app := server.New(cfg, log, collector, processor, engine, riskMgr)
	app.SetHTTPHandler(handler)
	app.SetPositionSync(possync)
	if consumer != nil {
		app.SetKafka(consumer, commands, producer)
	}
	if alerts != nil {
		app.SetAlertConsumer(alerts)
	}
	if chClient != nil {
		app.SetClickHouse(chClient)
	}
	return app
}
