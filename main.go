package main

import (
	"context"
	"os"
	"time"

	"github.com/litetable/litetable-bulkload/internal/app"
	"github.com/litetable/litetable-bulkload/internal/config"
	"github.com/litetable/litetable-bulkload/internal/metrics"
	"github.com/litetable/litetable-bulkload/internal/reducer"
	"github.com/litetable/litetable-bulkload/internal/segment"
	grpcsink "github.com/litetable/litetable-bulkload/internal/sink/grpc"
	"github.com/litetable/litetable-bulkload/internal/source"
	"github.com/litetable/litetable-bulkload/internal/tsv"
	"github.com/litetable/litetable-bulkload/internal/visibility"
	"github.com/rs/zerolog"
)

const defaultConfigFile = "bulkload.conf"

func main() {
	application, err := initialize()
	if err != nil {
		panic(err)
	}

	if err = application.Run(context.Background()); err != nil {
		os.Exit(1)
	}
}

func initialize() (*app.App, error) {
	configPath := defaultConfigFile
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.New(configPath)
	if err != nil {
		return nil, err
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	parser, err := tsv.New(&tsv.Config{
		Columns:   cfg.Columns,
		Separator: cfg.Separator,
	})
	if err != nil {
		return nil, err
	}

	loadMetrics := metrics.New()

	var deps []app.Dependency

	// pick the downstream sink for the sorted batches
	var sink reducer.Sink
	switch cfg.Sink {
	case config.SinkGRPC:
		grpcSink, sinkErr := grpcsink.New(&grpcsink.Config{
			Address: cfg.ServerAddress,
			Port:    cfg.ServerPort,
		})
		if sinkErr != nil {
			return nil, sinkErr
		}
		deps = append(deps, grpcSink)
		sink = grpcSink
	default:
		writer, sinkErr := segment.New(&segment.Config{
			OutputDir: cfg.OutputDir,
		})
		if sinkErr != nil {
			return nil, sinkErr
		}
		deps = append(deps, writer)
		sink = writer
	}

	red, err := reducer.New(&reducer.Config{
		Parser:           parser,
		Expander:         visibility.New(),
		Sink:             sink,
		Counters:         loadMetrics,
		DefaultTimestamp: cfg.Timestamp,
		SkipBadLines:     cfg.SkipBadLines,
		Threshold:        cfg.BatchThreshold,
	})
	if err != nil {
		return nil, err
	}

	src, err := source.New(&source.Config{
		InputPath:    cfg.Input,
		Parser:       parser,
		Reducer:      red,
		Counters:     loadMetrics,
		SkipBadLines: cfg.SkipBadLines,
	})
	if err != nil {
		return nil, err
	}
	deps = append(deps, src)

	application, err := app.CreateApp(&app.Config{
		ServiceName: "LiteTable Bulkload",
		StopTimeout: 5 * time.Second,
	}, deps...)
	if err != nil {
		return nil, err
	}

	return application, nil
}
