//go:build wireinject
// +build wireinject

package di

import (
	"DepthWatch/pkg/config"
	"DepthWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideDetectionStore,
		ProvideConfigStore,
		ProvideCache,
		ProvideDetectionPublisher,
		ProvideDepthStream,
		ProvideMarketData,

		// Use cases
		ProvideParams,
		ProvideTrapDetector,
		ProvideDetector,
		ProvideHistoryAggregator,

		// HTTP
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
