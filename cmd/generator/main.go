package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"validation-generator/internal/config"
	"validation-generator/internal/db"
	"validation-generator/internal/metrics"
	"validation-generator/internal/output"
	"validation-generator/internal/publisher"
	"validation-generator/internal/schedule"
	"validation-generator/internal/sim"
)

func main() {
	if os.Getenv("LOG_FORMAT") != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:  "validation-generator",
		Usage: "Generate synthetic fare validations from a GTFS stop_times table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "YAML config file"},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "stop_times.txt path"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "JSON output path"},
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "number of validations to draw"},
			&cli.StringFlag{Name: "date", Usage: "fixed validation_date (YYYY-MM-DD)"},
			&cli.Uint64Flag{Name: "seed", Usage: "random seed for a reproducible run"},
			&cli.StringFlag{Name: "source", Usage: "schedule source: csv or postgres"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.NumValidations)
	}

	runCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer stop()
		return generate(gctx, cfg, mcol)
	})
	if mcol != nil {
		srv := mcol.Serve(cfg.MetricsAddr)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("input") {
		cfg.StopTimesPath = c.String("input")
	}
	if c.IsSet("output") {
		cfg.OutputPath = c.String("output")
	}
	if c.IsSet("count") {
		cfg.NumValidations = c.Int("count")
	}
	if c.IsSet("date") {
		cfg.ValidationDate = c.String("date")
	}
	if c.IsSet("seed") {
		seed := c.Uint64("seed")
		cfg.Seed = &seed
	}
	if c.IsSet("source") {
		cfg.Source = c.String("source")
	}
}

func generate(ctx context.Context, cfg *config.Config, mcol *metrics.Collector) error {
	start := time.Now()

	policy, err := schedule.ParsePolicy(cfg.TimePolicy)
	if err != nil {
		return err
	}
	idx, err := loadIndex(ctx, cfg, policy)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	log.Info().Int("trips", idx.TripCount()).Int("stops", idx.StopCount()).Msg("Found trips and unique stops")
	if mcol != nil {
		mcol.ObserveIndex(idx)
	}

	seed := uint64(time.Now().UnixNano())
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	sampler := sim.NewSampler(idx, sim.NewRand(seed), sim.WithValidationDate(cfg.ValidationDate))

	opts := []output.Option{output.WithProgressEvery(cfg.ProgressEvery)}
	if mcol != nil {
		opts = append(opts, output.WithMetrics(mcol))
	}
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer pub.Close()
		opts = append(opts, output.WithTap(pub))
	}

	f, err := output.CreateFile(cfg.OutputPath)
	if err != nil {
		return err
	}
	log.Info().
		Int("count", cfg.NumValidations).
		Uint64("seed", seed).
		Str("output", cfg.OutputPath).
		Msg("Generating validations")

	w := output.NewWriter(f, opts...)
	n, err := w.Drain(ctx, sampler.Generate(cfg.NumValidations))
	if err != nil {
		f.Abort()
		return err
	}
	if err := f.Commit(); err != nil {
		return err
	}

	if mcol != nil {
		mcol.DrawsSkipped.Add(float64(sampler.Skipped()))
		mcol.RunDuration.Set(time.Since(start).Seconds())
	}
	log.Info().
		Int("written", n).
		Int("skipped_draws", sampler.Skipped()).
		Dur("took", time.Since(start)).
		Msg("Done")
	return nil
}

func loadIndex(ctx context.Context, cfg *config.Config, policy schedule.TimePolicy) (*schedule.Index, error) {
	if cfg.Source != config.SourcePostgres {
		return schedule.LoadFile(cfg.StopTimesPath, policy)
	}

	conn, name, err := db.OpenForCity(ctx, cfg.DatabaseURL, cfg.City)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if name != "" {
		log.Info().Str("database", name).Str("city", cfg.City).Msg("Using latest import")
	}

	b := schedule.NewBuilder(policy)
	if err := db.StreamStopTimes(ctx, conn, b.Add); err != nil {
		return nil, err
	}
	idx := b.Index()
	log.Info().
		Int("rows", idx.Stats.Rows).
		Int("skipped_missing", idx.Stats.SkippedMissing).
		Int("skipped_malformed", idx.Stats.SkippedMalformed).
		Msg("Indexed schedule from postgres")
	return idx, nil
}

// wrapPublisherMetrics avoids handing the publisher a typed nil.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return c
}
