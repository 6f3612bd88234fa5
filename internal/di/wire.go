//go:build wireinject
// +build wireinject

package di

import (
	"TrendEngine/pkg/config"
	"TrendEngine/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideClock,
		ProvideIndicators,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideReportCache,
		ProvideClickHouseClient,
		ProvideTradeHistory,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Exchange connectivity
		ProvideOrderBook,
		ProvideMarketFeed,
		ProvideExchangeGateway,

		// Event and alert delivery
		ProvideEventPublisher,
		ProvideNotifier,
		ProvideAlertConsumer,

		// Decision pipeline
		ProvideRiskManager,
		ProvideTracker,
		ProvideMacroCell,
		ProvideSignalValidator,
		ProvideStrategyEngine,

		// Use cases
		ProvideBarProcessor,
		ProvideBarCollector,
		ProvidePositionSync,
		ProvideCommandHandler,
		ProvideBacktestRunner,
		ProvideStatusUseCase,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
