package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/meterbill/internal/config"
	storedomain "github.com/smallbiznis/meterbill/internal/store/domain"
	"github.com/smallbiznis/meterbill/internal/store/kvstore"
	"github.com/smallbiznis/meterbill/internal/store/sqlstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("store",
	fx.Provide(NewRedisClient),
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	DB     *gorm.DB              `optional:"true"`
	Redis  redis.UniversalClient `optional:"true"`
}

// New selects the persistence backend named by STORE_BACKEND.
func New(p Params) (storedomain.Store, error) {
	log := p.Log.Named("store")
	switch p.Config.StoreBackend {
	case config.StoreBackendSQL:
		if p.DB == nil {
			return nil, errors.New("sql store requires a database connection")
		}
		log.Info("using sql store", zap.String("dialect", p.DB.Dialector.Name()))
		return sqlstore.New(p.DB), nil
	case config.StoreBackendRedis:
		if p.Redis == nil {
			return nil, errors.New("redis store requires a redis client")
		}
		log.Info("using redis store", zap.String("prefix", p.Config.Redis.KeyPrefix))
		return kvstore.New(p.Redis, kvstore.Options{Prefix: p.Config.Redis.KeyPrefix}), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", p.Config.StoreBackend)
	}
}

// NewRedisClient connects to Redis when the redis store or the write rate limiter
// needs it. Both share the one connection.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	if cfg.StoreBackend != config.StoreBackendRedis && !cfg.RateLimit.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("REDIS_ADDR is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
