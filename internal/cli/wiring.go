package cli

import (
	"context"
	"fmt"
	"time"

	"forms-response-service/internal/app"
	"forms-response-service/internal/config"
	"forms-response-service/internal/infra/memory"
	"forms-response-service/internal/infra/postgres"
	redisstore "forms-response-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// runtime holds the wired use cases and the resources to release on shutdown.
type runtime struct {
	submissions *app.SubmissionService
	reports     *app.Aggregator
	sessions    app.SessionRegistry
	audit       app.AuditSink
	closers     []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

type formLoader interface {
	memory.FormLoader
	redisstore.FormLoader
}

type submissionBackend interface {
	app.SubmissionStore
	app.ReportStore
	app.AuditTrail
}

type directoryBackend interface {
	app.IdentityProvider
	app.ClassDirectory
}

// buildRuntime wires Postgres and Redis adapters when configured and falls back to the
// in-memory ones with the demo catalog otherwise.
func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{}
	fail := func(err error) (*runtime, error) {
		rt.Close()
		return nil, err
	}

	var (
		loader      formLoader
		backend     submissionBackend
		directory   directoryBackend
		auditWriter app.AuditWriter
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		rt.closers = append(rt.closers, pool.Close)

		db := openDB(cfg.Postgres.URL)
		rt.closers = append(rt.closers, func() { _ = db.Close() })

		loader = postgres.NewFormLoader(pool)
		backend = postgres.NewStore(db)
		directory = postgres.NewDirectory(pool)
		auditWriter = postgres.NewAuditLog(db)
		log.Info().Msg("using postgres submission store")
	} else {
		loader = memory.NewStaticFormLoader(sampleForms()...)
		backend = memory.NewStore()
		directory = sampleDirectory()
		auditWriter = memory.NewAuditLog()
		log.Warn().Msg("postgres not configured, submissions are kept in memory")
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	reportTTL := config.TTLDuration(cfg.Reports.CacheTTL, time.Minute)

	var (
		forms   app.FormCatalog
		reports app.ReportCache
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })

		forms = redisstore.NewFormRepository(client, loader, config.TTLDuration(cfg.Redis.TTL, catalogTTL))
		reports = redisstore.NewReportCache(client, reportTTL)
		rt.sessions = redisstore.NewSessionStore(client, config.TTLDuration(cfg.Redis.SessionTTL, 2*time.Hour))
	} else {
		forms = memory.NewFormRepository(loader, catalogTTL)
		reports = memory.NewReportCache(reportTTL)
		rt.sessions = memory.NewSessionStore()
	}

	timeout := config.TTLDuration(cfg.Audit.Timeout, 5*time.Second)
	dispatcher := app.NewAuditDispatcher(auditWriter, cfg.Audit.Buffer, timeout)
	rt.closers = append(rt.closers, dispatcher.Close)
	rt.audit = dispatcher

	rt.submissions = app.NewSubmissionService(backend, forms, dispatcher, app.WithReportCache(reports))
	rt.reports = app.NewAggregator(forms, backend, backend, directory, directory,
		app.WithCache(reports),
		app.WithParallelism(cfg.Reports.Parallelism),
	)
	return rt, nil
}
