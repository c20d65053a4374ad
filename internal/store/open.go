package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/chessanalyzer/internal/config"
)

// Open picks MongoDB when MONGO_URI is set, otherwise the file store under STORE_DIR.
// The returned close func is never nil.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (GameStore, func() error, error) {
	if cfg.MongoURI != "" {
		ms, err := ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return nil, func() error { return nil }, err
		}
		return ms, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Close(closeCtx)
		}, nil
	}

	fs, err := OpenFileStore(cfg.StoreDir, log)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	log.Info().Str("dir", cfg.StoreDir).Msg("using file store")
	return fs, fs.Close, nil
}
