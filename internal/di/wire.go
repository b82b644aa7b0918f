//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/handler/api"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/config"
	"FinSignal/pkg/metrics"
	"FinSignal/pkg/server"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideRegistry,
	metrics.New,
	wire.Bind(new(domrepo.Metrics), new(*metrics.Recorder)),
	ProvideClickHouseTables,
	ProvideClickHouseClient,
	ProvideKafkaProducer,
	ProvideRedisCache,
	ProvideClosers,
)

var pipelineSet = wire.NewSet(
	ProvideTransformer,
	ProvideCandleSource,
	ProvideTableSource,
	ProvideBarStore,
	ProvideRedisSummaryStore,
	ProvideETL,
	ProvideRunners,
	ProvideBacktest,
)

var apiSet = wire.NewSet(
	ProvideSummaryReader,
	usecase.NewSummaryUseCase,
	api.NewSummaryEchoHandler,
	ProvideHTTPServer,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		pipelineSet,
		apiSet,
		server.New,
	)
	return &server.App{}, nil
}
