package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"essaygrade/internal/cli/config"
	"essaygrade/internal/cli/repl"
	"essaygrade/internal/client"
	"essaygrade/internal/grading/poller"
	"essaygrade/internal/grading/service"
	"essaygrade/pkg/utils/logger"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 30s)")
	compact := flag.Bool("compact", false, "Print JSON on one line instead of indented")
	exec := flag.String("exec", "", "Run a single command and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath, *configPath == defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	cfg.Apply(config.Overrides{BaseURL: *baseURL, Timeout: *timeout, Compact: *compact})

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := cfg.OpenJobStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open job store failed: %v\n", err)
		os.Exit(1)
	}
	sink, err := cfg.OpenSink()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open export sink failed: %v\n", err)
		os.Exit(1)
	}

	api := client.New(cfg.BaseURL, cfg.Timeout)
	svc := repl.Services{
		Client:  api,
		Scoring: service.NewScoringFlow(api, api),
		Reviews: service.NewReviewService(api),
		Batches: service.NewBatchService(api, store, poller.New(api, cfg.Poll.Poller())),
		Exports: service.NewExportService(api, sink),
	}
	session := repl.New(cfg, svc, os.Stdout)
	ctx := context.Background()

	if *exec != "" {
		err := session.Exec(ctx, *exec)
		session.Close()
		if err != nil {
			session.Notices().Error(err)
		}
		session.Flush()
		if err != nil {
			os.Exit(1)
		}
		return
	}
	if err := session.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
