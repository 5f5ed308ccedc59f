package fx

import (
	"context"

	"ladderwatch/internal/api"
	"ladderwatch/internal/blobstore"
	"ladderwatch/internal/config"
	"ladderwatch/internal/database"
	"ladderwatch/internal/dedup"
	"ladderwatch/internal/discovery"
	"ladderwatch/internal/ingest"
	"ladderwatch/internal/logger"
	"ladderwatch/internal/recordstore"
	"ladderwatch/internal/roster"
	"ladderwatch/internal/scoring"
	"ladderwatch/internal/server"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ProvideBlobStore constructs the S3 backup store. A failure here is
// fatal at startup, before the scheduler ever runs.
func ProvideBlobStore(cfg *config.Config, log zerolog.Logger) (blobstore.Store, error) {
	return blobstore.NewS3(context.Background(), cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region, log)
}

func ProvideScorer() *scoring.Scorer {
	return scoring.NewScorer(scoring.DefaultRules())
}

func ProvideMatchSearcher(client *api.LadderClient) discovery.MatchSearcher {
	return client
}

func ProvideDiscoverer(svc *discovery.Service) ingest.Discoverer {
	return svc
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	fx.Provide(roster.NewRepository),
	// remote backup store
	fx.Provide(ProvideBlobStore),
	// api client
	fx.Provide(api.NewLadderClient),
	fx.Provide(ProvideMatchSearcher),
	// pipeline components
	fx.Provide(discovery.NewService),
	fx.Provide(ProvideDiscoverer),
	fx.Provide(ProvideScorer),
	fx.Provide(dedup.NewTieredStore),
	fx.Provide(recordstore.NewStore),
	fx.Provide(ingest.NewOrchestrator),
	// server
	fx.Provide(server.NewServer),
)
