package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/learning-platform/internal/platform/auth"
	"github.com/example/learning-platform/internal/platform/config"
	"github.com/example/learning-platform/internal/platform/db"
	"github.com/example/learning-platform/internal/platform/events"
	"github.com/example/learning-platform/internal/platform/httpserver"
	"github.com/example/learning-platform/internal/platform/logging"
	"github.com/example/learning-platform/internal/platform/natsconn"
	"github.com/example/learning-platform/internal/platform/run"
	"github.com/example/learning-platform/internal/platform/validate"
	"github.com/example/learning-platform/services/progress/internal/catalog"
	progressconfig "github.com/example/learning-platform/services/progress/internal/config"
	"github.com/example/learning-platform/services/progress/internal/handlers"
	progresshttp "github.com/example/learning-platform/services/progress/internal/http"
	"github.com/example/learning-platform/services/progress/internal/store"
	"github.com/example/learning-platform/services/progress/internal/worker"

	"github.com/nats-io/nats.go"
)

func main() {
	cfg := config.Load("progress")
	log, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	svcCfg, err := progressconfig.Load()
	if err != nil {
		log.Error("load config", zap.Error(err))
		run.Exit(1)
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, "")
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}

	var (
		progressStore store.ProgressStore
		annotations   store.AnnotationStore
	)
	if pool != nil {
		defer pool.Close()
		progressStore = store.NewPostgresProgressStore(pool)
		annotations = store.NewPostgresAnnotationStore(pool)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		progressStore = store.NewInMemoryProgressStore()
		annotations = store.NewInMemoryAnnotationStore()
	}
	overlay := store.NewOverlayAnnotationStore(annotations, log)

	var provider catalog.Provider
	if svcCfg.CatalogBaseURL != "" {
		provider = catalog.NewClient(svcCfg.CatalogBaseURL)
	} else {
		log.Warn("PROGRESS_CATALOG_URL not set, serving an empty catalog")
		provider = catalog.NewStatic()
	}
	if svcCfg.RedisURL != "" {
		cache, err := catalog.NewRedisCache(svcCfg.RedisURL, svcCfg.OutlineCacheTTL)
		if err != nil {
			log.Error("redis init", zap.Error(err))
			run.Exit(1)
		}
		provider = catalog.NewCachedProvider(provider, cache, log)
	}

	var (
		js        nats.JetStreamContext
		publisher *handlers.EventPublisher
	)
	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Warn("nats connect failed, flushes apply synchronously", zap.Error(err))
	} else {
		defer nc.Close()
		js, err = nc.JetStream()
		if err != nil {
			log.Warn("jetstream init failed, flushes apply synchronously", zap.Error(err))
		} else {
			publisher = handlers.NewEventPublisher(js)
		}
	}
	ev := events.New(js, log)
	v := validate.New()

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: func() error {
		if pool == nil {
			return nil
		}
		return pool.Ping(context.Background())
	}})

	verifier := auth.JWTVerifier{Secret: svcCfg.JWTSecret}
	flushLimiter := progresshttp.NewRateLimiter(svcCfg.FlushRate, svcCfg.FlushBurst)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))

		r.Get("/v1/courses/{course_id}/outline", handlers.CourseOutline(provider, progressStore))
		r.Get("/v1/courses/{course_id}/progress", handlers.CourseProgress(progressStore))
		r.Get("/v1/courses/{course_id}/navigation", handlers.Navigation(provider, progressStore))
		r.Post("/v1/courses/{course_id}/lessons/{lesson_id}/complete", handlers.MarkComplete(progressStore, provider, v, ev))

		r.Group(func(r chi.Router) {
			r.Use(flushLimiter.Middleware)
			r.Post("/v1/courses/{course_id}/progress/flush", handlers.FlushProgress(progressStore, provider, publisher, v, ev))
		})

		r.Post("/v1/courses/{course_id}/lessons/{lesson_id}/notes", handlers.AddNote(overlay, provider, v))
		r.Get("/v1/courses/{course_id}/lessons/{lesson_id}/notes", handlers.ListNotes(overlay))
		r.Delete("/v1/notes/{note_id}", handlers.DeleteNote(overlay))
		r.Post("/v1/courses/{course_id}/lessons/{lesson_id}/bookmarks", handlers.AddBookmark(overlay, provider, v))
		r.Get("/v1/courses/{course_id}/bookmarks", handlers.ListBookmarks(overlay))
		r.Delete("/v1/bookmarks/{bookmark_id}", handlers.DeleteBookmark(overlay))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil && pool != nil {
			worker.StartFlushConsumer(ctx, nc, pool, log)
		}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
