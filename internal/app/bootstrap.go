package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/events"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/invoices"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/returns"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store/memory"
	"github.com/odyssey-erp/stockledger/jobs"
)

// Container holds the wired components shared by the API and the worker.
type Container struct {
	Config    *Config
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Ledger    *observability.Ledger
	Inventory *inventory.Service
	Engine    *invoices.Engine
	Workflow  *returns.Workflow
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	// Idempotency guards payment replays; the worker prunes it.
	Idempotency shared.IdempotencyKeys

	closers []func() error
}

// Bootstrap opens the configured store, cache and event publisher and wires
// the ledger components on top of them.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := returns.PolicyFor(cfg.ReturnProviderPolicy)
	if err != nil {
		return nil, err
	}

	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	c.Ledger = observability.NewLedger(c.Metrics.Registerer())

	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			if cfg.StoreDriver != DriverMemory {
				return nil, err
			}
			logger.Warn("redis unavailable, stock cache disabled", slog.Any("error", err))
		} else {
			c.Redis = client
			c.closers = append(c.closers, client.Close)
		}
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher = kp
		c.closers = append(c.closers, kp.Close)
	}

	var (
		invoiceStore invoices.Store
		returnStore  returns.Store
		readRepo     inventory.ReadRepository
		audit        shared.AuditPort
	)
	switch cfg.StoreDriver {
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Pool = pool
		c.closers = append(c.closers, func() error { pool.Close(); return nil })
		invoiceStore = invoices.NewRepository(pool)
		returnStore = returns.NewRepository(pool)
		readRepo = inventory.NewRepository(pool)
		audit = shared.NewAuditLogger(pool)
		c.Idempotency = shared.NewIdempotencyStore(pool)
	case DriverMemory:
		store := memory.New()
		invoiceStore = store.InvoiceStore()
		returnStore = store.ReturnStore()
		readRepo = store.InventoryStore()
		audit = shared.SlogAuditLogger{Logger: logger}
		c.Idempotency = shared.NewMemoryIdempotency()
	default:
		_ = c.Close()
		return nil, fmt.Errorf("bootstrap: unsupported store driver %q", cfg.StoreDriver)
	}

	c.Inventory = inventory.NewService(readRepo, inventory.NewCache(c.Redis, cfg.StockCacheTTL), logger)
	c.Engine = invoices.NewEngine(invoiceStore, invoices.Options{
		Audit:     audit,
		Publisher: publisher,
		Stock:     c.Inventory,
		Metrics:   c.Ledger,
		Logger:    logger,
	})
	c.Workflow = returns.NewWorkflow(returnStore, c.Engine, returns.Options{
		Policy:    policy,
		Audit:     audit,
		Publisher: publisher,
		Stock:     c.Inventory,
		Metrics:   c.Ledger,
		Logger:    logger,
	})
	return c, nil
}

// Router builds the HTTP surface of the container.
func (c *Container) Router() http.Handler {
	var jobHandler *jobs.Handler
	if c.Redis != nil {
		opts := asynq.RedisClientOpt{Addr: c.Config.RedisAddr}
		inspector := asynq.NewInspector(opts)
		client := jobs.NewClient(opts)
		c.closers = append(c.closers, inspector.Close, client.Close)
		jobHandler = jobs.NewHandler(inspector, client, c.Logger)
	} else {
		jobHandler = jobs.NewHandler(nil, nil, c.Logger)
	}
	return NewRouter(RouterParams{
		Logger:           c.Logger,
		Config:           c.Config,
		InvoiceHandler:   invoices.NewHandler(c.Logger, c.Engine, c.Idempotency),
		ReturnHandler:    returns.NewHandler(c.Logger, c.Workflow),
		InventoryHandler: inventory.NewHandler(c.Logger, c.Inventory),
		JobHandler:       jobHandler,
		Metrics:          c.Metrics,
		Health:           c.health,
	})
}

func (c *Container) health(r *http.Request) error {
	if c.Pool != nil {
		if err := c.Pool.Ping(r.Context()); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(r.Context()).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases resources in reverse acquisition order.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
