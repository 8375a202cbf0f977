//go:build wireinject
// +build wireinject

package di

import (
	"io"

	"DecisionCore/internal/usecase"
	"DecisionCore/pkg/config"
	"DecisionCore/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideRedisClient,
	ProvideCache,
	ProvideKafkaProducer,
)

var storageSet = wire.NewSet(
	ProvideDecisionPublisher,
	ProvideDecisionStore,
	ProvideObservationStore,
)

var engineSet = wire.NewSet(
	ProvideDecisionProcessor,
	ProvideRegimeProvider,
	ProvideHypotheses,
	ProvideEngineManager,
)

var inputSet = wire.NewSet(
	ProvidePipeline,
	ProvideObservationStream,
	ProvideObservationCollector,
	ProvideKafkaConsumer,
	ProvideKafkaHandler,
)

var apiSet = wire.NewSet(
	ProvideDecisionReader,
	ProvideRegimeReader,
	ProvideHTTPHandler,
	ProvideHTTPServer,
)

var controlSet = wire.NewSet(
	ProvideControlQueue,
	ProvideJobs,
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		storageSet,
		engineSet,
		inputSet,
		apiSet,
		controlSet,
		wire.Struct(new(server.Components), "*"),
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializeReplayer wires an offline replayer writing decisions to out.
func InitializeReplayer(cfg *config.Config, out io.Writer) (*usecase.Replayer, error) {
	wire.Build(
		ProvideLogger,
		ProvideReplayer,
	)
	return &usecase.Replayer{}, nil
}
