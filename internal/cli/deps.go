package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/shoppingcart/internal/config"
	"github.com/nikolayk812/shoppingcart/internal/logger"
	"github.com/nikolayk812/shoppingcart/internal/notify"
	"github.com/nikolayk812/shoppingcart/internal/port"
	"github.com/nikolayk812/shoppingcart/internal/repository"
	"github.com/nikolayk812/shoppingcart/internal/shoppingcart"
	"github.com/redis/go-redis/v9"
)

// deps are the resources a storage command needs.
type deps struct {
	carts   port.CartStore
	service *shoppingcart.Service
	closers []func() error
}

func openDeps(ctx context.Context, cfg *config.Config, log *logger.Logger) (*deps, error) {
	d := &deps{}

	carts, err := d.openCartStore(ctx, cfg.DB)
	if err != nil {
		return nil, errors.Join(err, d.Close())
	}
	d.carts = carts

	var client *redis.Client
	if cfg.Redis.URL != "" {
		client, err = repository.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, errors.Join(err, d.Close())
		}
		d.closers = append(d.closers, client.Close)
	}

	sessions := repository.NewMemorySessionStore()
	if cfg.Session.Store == "redis" {
		sessions, err = repository.NewRedisSessionStore(client, cfg.Session.Prefix, cfg.Session.TTL)
		if err != nil {
			return nil, errors.Join(err, d.Close())
		}
	}

	sinks := []port.Notifier{notify.NewLogSink(log)}
	if client != nil && cfg.Redis.EventsChannel != "" {
		sink, err := notify.NewRedisSink(client, cfg.Redis.EventsChannel)
		if err != nil {
			return nil, errors.Join(err, d.Close())
		}
		sinks = append(sinks, sink)
	}

	cur, err := cfg.Pricing.CurrencyUnit()
	if err != nil {
		return nil, errors.Join(err, d.Close())
	}
	cartOpts, err := cfg.Pricing.CartOptions()
	if err != nil {
		return nil, errors.Join(err, d.Close())
	}

	d.service, err = shoppingcart.NewService(sessions, carts, cur,
		shoppingcart.WithNotifier(notify.Multi(sinks...)),
		shoppingcart.WithLogger(log),
		shoppingcart.WithCartOptions(cartOpts...),
	)
	if err != nil {
		return nil, errors.Join(err, d.Close())
	}

	return d, nil
}

func (d *deps) openCartStore(ctx context.Context, cfg config.DBConfig) (port.CartStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("CART_DB_DSN is required")
	}

	tables := repository.Tables{Carts: cfg.CartsTable, Items: cfg.ItemsTable}

	switch cfg.Driver {
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("pgxpool.ParseConfig: %w", err)
		}
		poolCfg.MaxConns = cfg.MaxConns

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("pgxpool.NewWithConfig: %w", err)
		}
		d.closers = append(d.closers, func() error {
			pool.Close()
			return nil
		})
		return repository.NewCartStore(pool)
	case "gorm", "sqlite":
		driver := "postgres"
		if cfg.Driver == "sqlite" {
			driver = "sqlite"
		}

		db, err := repository.OpenGorm(driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db.DB: %w", err)
		}
		d.closers = append(d.closers, sqlDB.Close)

		if driver == "sqlite" {
			if err := repository.AutoMigrate(ctx, db, tables); err != nil {
				return nil, err
			}
		}
		return repository.NewGormCartStore(db, tables)
	default:
		return nil, fmt.Errorf("driver[%s] is not supported", cfg.Driver)
	}
}

func (d *deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}
