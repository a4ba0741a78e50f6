package di

import (
	"context"
	"fmt"
	"time"

	"DepthWatch/internal/domain/repository"
	"DepthWatch/internal/handler/api"
	mid "DepthWatch/internal/middleware"
	internalrepo "DepthWatch/internal/repository"
	"DepthWatch/internal/service/binance"
	icache "DepthWatch/internal/service/cache"
	"DepthWatch/internal/service/ratelimit"
	"DepthWatch/internal/services/analytics"
	"DepthWatch/internal/usecase"
	pkgch "DepthWatch/pkg/clickhouse"
	"DepthWatch/pkg/config"
	xhttp "DepthWatch/pkg/http"
	pkgkafka "DepthWatch/pkg/kafka"
	applogger "DepthWatch/pkg/logger"
	"DepthWatch/pkg/metrics"
	"DepthWatch/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	if cfg.Environment == "development" {
		level = "debug"
	}
	return applogger.New(&applogger.Config{Level: level, Format: "json", Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideDetectionStore creates the ClickHouse detection store and
// ensures its schema.
func ProvideDetectionStore(chClient *pkgch.Client, l *applogger.Logger) (repository.DetectionStore, error) {
	store := internalrepo.NewCHDetectionStore(chClient, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("detection store schema: %w", err)
	}
	return store, nil
}

// ProvideRedisClient creates a Redis client, or nil when disabled.
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

// ProvideConfigStore creates the runtime-override store, or nil when
// Redis is disabled (defaults then apply).
func ProvideConfigStore(cli *redis.Client, cfg *config.Config) repository.ConfigStore {
	if cli == nil {
		return nil
	}
	return internalrepo.NewRedisConfigStore(cli, cfg.Redis.ConfigKey)
}

// ProvideCache creates the response cache: Redis when available, an
// in-process TTL cache otherwise.
func ProvideCache(cli *redis.Client) icache.BytesCache {
	if cli != nil {
		return icache.NewRedisCache(cli)
	}
	return icache.NewTTLCache()
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
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

// ProvideDetectionPublisher creates the Kafka publisher, or nil when
// Kafka is disabled.
func ProvideDetectionPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.DetectionPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideDepthStream creates the exchange WebSocket stream.
func ProvideDepthStream(cfg *config.Config, l *applogger.Logger) repository.DepthStream {
	return binance.NewStream(
		cfg.Exchange.WebSocketURL,
		cfg.Exchange.DepthLevels,
		cfg.Exchange.DepthInterval,
		cfg.Exchange.ReconnectDelay,
		cfg.Exchange.PingInterval,
		l,
	)
}

// ProvideMarketData creates the exchange REST client.
func ProvideMarketData(cfg *config.Config) repository.MarketData {
	client := xhttp.NewClient(xhttp.WithTimeout(15 * time.Second))
	return binance.NewMarketData(cfg.Exchange.RestURL, client, ratelimit.New(), cfg.Exchange.RestRPS)
}

// ProvideTrapDetector creates the trap validator.
func ProvideTrapDetector(cfg *config.Config) *analytics.TrapDetector {
	params := analytics.DefaultTrapParams()
	if cfg.Detection.MinTrapConfidence > 0 {
		params.MinConfidence = cfg.Detection.MinTrapConfidence
	}
	return analytics.NewTrapDetector(params)
}

// ProvideParams builds detection parameters: built-in defaults with
// YAML overrides for anything set.
func ProvideParams(cfg *config.Config) usecase.Params {
	p := usecase.DefaultParams()
	d := cfg.Detection
	if d.NotionalThreshold > 0 {
		p.NotionalThreshold = d.NotionalThreshold
	}
	if d.PersistSnapshots > 0 {
		p.PersistSnapshots = d.PersistSnapshots
	}
	if d.SpoofWindow > 0 {
		p.SpoofWindow = d.SpoofWindow
	}
	if d.ImpactThreshold > 0 {
		p.ImpactRatioThreshold = d.ImpactThreshold
	}
	if d.CVDWindow > 0 {
		p.CVDWindow = d.CVDWindow
	}
	if d.PriceTolerance > 0 {
		p.PriceTolerance = d.PriceTolerance
	}
	if d.MaxTrackedEntries > 0 {
		p.MaxTrackedEntries = d.MaxTrackedEntries
	}
	if d.TopDepthLevels > 0 {
		p.TopDepthLevels = d.TopDepthLevels
	}
	if d.ScoreMargin > 0 {
		p.ScoreMargin = d.ScoreMargin
	}
	if d.FlowRefresh > 0 {
		p.FlowRefreshInterval = d.FlowRefresh
	}
	if d.DetectInterval > 0 {
		p.DetectInterval = d.DetectInterval
	}
	return p
}

// ProvideDetector creates the orchestrator with its feed pipeline.
func ProvideDetector(
	params usecase.Params,
	stream repository.DepthStream,
	market repository.MarketData,
	store repository.DetectionStore,
	pub repository.DetectionPublisher,
	cfgStore repository.ConfigStore,
	trap *analytics.TrapDetector,
	m repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) *usecase.Detector {
	opts := []mid.PipelineOption{}
	if cfg.Detection.SnapshotThrottle > 0 {
		opts = append(opts, mid.WithMinSnapshotInterval(cfg.Detection.SnapshotThrottle))
	}
	pipe := mid.NewDepthPipeline(m, opts...)
	return usecase.NewDetector(params, stream, market, store, pub, cfgStore, pipe, trap, m, l)
}

// ProvideHistoryAggregator creates the history roll-up service.
func ProvideHistoryAggregator(store repository.DetectionStore, l *applogger.Logger) *usecase.HistoryAggregator {
	return usecase.NewHistoryAggregator(store, l)
}

// ProvideHTTPHandler creates the API handler.
func ProvideHTTPHandler(
	l *applogger.Logger,
	detector *usecase.Detector,
	history *usecase.HistoryAggregator,
	cache icache.BytesCache,
) xhttp.Handler {
	h := api.NewDetectionsHandler(l, detector, history)
	h.SetCache(cache)
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	detector *usecase.Detector,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	redisCli *redis.Client,
) *server.App {
	return server.New(cfg, l, detector, handler, chClient, producer, redisCli)
}
