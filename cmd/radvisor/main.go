// SPDX-FileCopyrightText: 2025 The rAdvisor Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/elba-docker/radvisor/internal/cgroup"
	"github.com/elba-docker/radvisor/internal/collector"
	"github.com/elba-docker/radvisor/internal/config"
	"github.com/elba-docker/radvisor/internal/engine"
	"github.com/elba-docker/radvisor/internal/flushlog"
	"github.com/elba-docker/radvisor/internal/logger"
	"github.com/elba-docker/radvisor/internal/provider"
	"github.com/elba-docker/radvisor/internal/provider/docker"
	"github.com/elba-docker/radvisor/internal/provider/kubernetes"
	"github.com/elba-docker/radvisor/internal/service"
	"github.com/elba-docker/radvisor/internal/sysinfo"
	"github.com/elba-docker/radvisor/internal/target"
	"github.com/elba-docker/radvisor/internal/version"
	"k8s.io/utils/clock"
)

// Exit codes: 0 on a clean run, 1 on initialization failure, 130 when
// terminated by SIGINT
const (
	exitInitFailure = 1
	exitInterrupted = 130
)

func main() {
	cfg, mode, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(exitInitFailure)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Color, os.Stderr)
	logVersionInfo(log)

	if runtime.GOOS != "linux" {
		log.Error("rAdvisor only runs on Linux due to its reliance on cgroups")
		os.Exit(exitInitFailure)
	}

	os.Exit(run(log, cfg, mode))
}

func run(log *slog.Logger, cfg *config.Config, mode string) int {
	ctx := context.Background()
	clk := clock.RealClock{}

	layout, err := cgroup.Detect(cgroup.DefaultMountRoot)
	if err != nil {
		log.Error("rAdvisor expects cgroups to be enabled and mounted in /sys/fs/cgroup",
			"error", err)
		return exitInitFailure
	}
	log.Info("Detected cgroup layout", "version", layout.Version)
	resolver := cgroup.NewResolver(layout, log)

	prov := newProvider(log, cfg, mode, resolver, clk)
	if err := prov.Init(ctx); err != nil {
		log.Error("Could not initialize provider", "provider", prov.Name(), "error", err)
		return exitInitFailure
	}

	var services []service.Service
	var events flushlog.Sink
	if cfg.Collection.FlushLog != "" {
		flushLog := flushlog.New(cfg.Collection.FlushLog, flushlog.WithLogger(log))
		services = append(services, flushLog)
		events = flushLog
	}

	system := sysinfo.NewReader().Get()
	factory := func(t *target.Target) (*collector.Collector, error) {
		return collector.New(collector.Options{
			Target:     t,
			Layout:     layout,
			Directory:  cfg.Collection.Directory,
			BufferSize: cfg.Collection.BufferSize,
			Events:     events,
			System:     system,
			Version:    version.Info().Version,
			Clock:      clk,
		})
	}

	eng := engine.New(prov, factory,
		engine.WithLogger(log),
		engine.WithClock(clk),
		engine.WithPollInterval(cfg.Polling.Interval),
		engine.WithCollectInterval(cfg.Collection.Interval),
	)
	services = append(services, eng.Services()...)

	signalHandler := service.NewSignalHandler(log, os.Interrupt, syscall.SIGTERM)
	services = append(services, signalHandler)

	if err := service.Init(log, services); err != nil {
		log.Error("Initialization failed", "error", err)
		return exitInitFailure
	}

	if err := service.Run(ctx, log, services); err != nil {
		log.Error("rAdvisor terminated with an error", "error", err)
		return exitInitFailure
	}

	log.Info("Graceful shutdown completed")
	if signalHandler.Received() == os.Interrupt {
		return exitInterrupted
	}
	return 0
}

func newProvider(log *slog.Logger, cfg *config.Config, mode string,
	resolver *cgroup.Resolver, clk clock.Clock,
) provider.Provider {
	switch mode {
	case "kubernetes":
		return kubernetes.New(resolver,
			kubernetes.WithLogger(log),
			kubernetes.WithClock(clk),
			kubernetes.WithPollInterval(cfg.Polling.Interval),
			kubernetes.WithKubeConfig(cfg.Kubernetes.KubeConfig),
		)
	default:
		return docker.New(resolver,
			docker.WithLogger(log),
			docker.WithClock(clk),
			docker.WithPollInterval(cfg.Polling.Interval),
		)
	}
}

func parseArgsAndConfig() (*config.Config, string, error) {
	app := kingpin.New("radvisor",
		"Monitors container resource utilization with high granularity and low overhead.")
	app.Version(version.Info().Version)
	app.HelpFlag.Short('h')
	app.VersionFlag.Short('V')

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)

	runCmd := app.Command("run", "Runs collection using the given provider backend")
	dockerCmd := runCmd.Command("docker",
		"Runs collection using docker as the target backend; collecting stats for each container")
	kubernetesCmd := runCmd.Command("kubernetes",
		"Runs collection using kubernetes as the target backend; collecting stats for each pod")

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	bootstrapLog := logger.New("info", "text", "auto", os.Stderr)
	cfg := config.DefaultConfig()
	if *configFile != "" {
		loadedCfg, err := config.FromFile(*configFile)
		if err != nil {
			bootstrapLog.Error("Error loading config file", "path", *configFile, "error", err)
			return nil, "", err
		}
		cfg = loadedCfg
	}

	// Command line flags override config file settings
	if err := updateConfig(cfg); err != nil {
		bootstrapLog.Error("Error applying command line flags", "error", err)
		return nil, "", err
	}

	var mode string
	switch command {
	case dockerCmd.FullCommand():
		mode = "docker"
	case kubernetesCmd.FullCommand():
		mode = "kubernetes"
	}
	return cfg, mode, nil
}

func logVersionInfo(log *slog.Logger) {
	v := version.Info()
	log.Info("rAdvisor version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}
