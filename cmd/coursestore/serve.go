package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"CourseStore/internal/auth"
	"CourseStore/internal/config"
	"CourseStore/internal/course"
	"CourseStore/internal/loader"
	"CourseStore/pkg/kit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load course data and serve the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := kit.NewLogger(service, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := course.NewStore()
	srv := &course.Server{Store: store, Log: log}

	var tokens *auth.TokenMaker
	if cfg.JWTSecret != "" {
		tokens = auth.NewTokenMaker(cfg.JWTSecret)
	} else {
		log.Warn("JWT_SECRET not set, writes are unauthenticated")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	h := course.NewHandler(srv, course.HTTPDeps{
		Log:              log,
		Service:          service,
		Registry:         reg,
		MetricsEnabled:   cfg.MetricsEnabled,
		MetricsToken:     cfg.MetricsToken,
		Tokens:           tokens,
		WriteLimitPerMin: cfg.WriteLimitPerMin,
	})

	err = serveWhileLoading(ctx, srv,
		func(ctx context.Context) error { return kit.RunHTTPServer(ctx, cfg.Addr(), h, log) },
		func(ctx context.Context) error { return loadData(ctx, cfg, store, log) },
	)
	if err != nil {
		log.Error("http server stopped", zap.Error(err))
		return err
	}
	return nil
}

// serveWhileLoading runs serve and load side by side. srv turns ready once
// load returns; a failed load stops the server.
func serveWhileLoading(ctx context.Context, srv *course.Server, serve, load func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(gctx) })
	g.Go(func() error {
		if err := load(gctx); err != nil {
			return err
		}
		srv.SetReady(true)
		return nil
	})
	return g.Wait()
}

// loadData runs the configured sources into store.
func loadData(ctx context.Context, cfg config.Config, store *course.Store, log *zap.Logger) error {
	sources, closeAll, err := buildSources(cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	if len(sources) == 0 {
		log.Info("no data sources configured, starting empty")
		return nil
	}

	l := &loader.Loader{Store: store, Log: log, Strict: cfg.StrictLoad}
	if _, err := l.Load(ctx, sources...); err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	return nil
}

func buildSources(cfg config.Config) ([]loader.Source, func(), error) {
	var sources []loader.Source
	for _, p := range cfg.DataFiles {
		sources = append(sources, loader.FileSource{Path: p})
	}

	closeAll := func() {}
	if cfg.DataDSN != "" {
		db, err := loader.OpenSQL(cfg.DataDSN)
		if err != nil {
			return nil, nil, err
		}
		closeAll = func() { _ = db.Close() }
		sources = append(sources, loader.SQLSource{DB: db, Query: cfg.DataQuery, Label: "data_dsn"})
	}
	return sources, closeAll, nil
}
