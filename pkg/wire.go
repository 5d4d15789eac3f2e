//go:build wireinject
// +build wireinject

package main

import (
	"game-soul-technology/joker/joker-match-queue-server/pkg/backend"
	"game-soul-technology/joker/joker-match-queue-server/pkg/client"
	"game-soul-technology/joker/joker-match-queue-server/pkg/clock"
	"game-soul-technology/joker/joker-match-queue-server/pkg/config"
	"game-soul-technology/joker/joker-match-queue-server/pkg/infra"
	"game-soul-technology/joker/joker-match-queue-server/pkg/match"
	"game-soul-technology/joker/joker-match-queue-server/pkg/presence"
	"game-soul-technology/joker/joker-match-queue-server/pkg/queue"

	"github.com/google/wire"
)

func Setup() (*Server, error) {
	wire.Build(
		ProvideServer,
		ProvideApplication,
		infra.ProvideEnv,
		infra.ProvideLoggerFactory,
		infra.ProvideRedisClient,
		infra.ProvideHttpClient,
		config.ProvideConfig,
		config.ProvideMatchConfig,
		clock.ProvideClock,
		queue.ProvideStore,
		presence.ProvideStore,
		backend.ProvideClient,
		wire.Bind(new(match.Wallet), new(*backend.Client)),
		wire.Bind(new(match.RoomFactory), new(*backend.Client)),
		match.ProvideTickerFactory,
		match.ProvideStatsTracker,
		match.ProvideCoordinator,
		client.ProvideHub,
	)
	return nil, nil
}
