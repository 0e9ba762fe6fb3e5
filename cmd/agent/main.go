package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/sentryd/pkg/classifier"
	"github.com/cuemby/sentryd/pkg/container"
	"github.com/cuemby/sentryd/pkg/emitter"
	"github.com/cuemby/sentryd/pkg/log"
	"github.com/cuemby/sentryd/pkg/metrics"
	"github.com/cuemby/sentryd/pkg/probe"
	"github.com/cuemby/sentryd/pkg/registry"
	"github.com/cuemby/sentryd/pkg/sysaccount"
	"github.com/cuemby/sentryd/pkg/watch"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	inumChannelCapacity      = 256
	ignoredIPChannelCapacity = 32
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "agent",
	Short:   "node-observer agent - per-node eBPF traffic and syscall observer",
	Long:    `A per-node agent that watches its node's pods and services, attributes kernel network and syscall activity to them via eBPF, and reports deduplicated flows and syscall sets to a remote collector.`,
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL if set")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", ":9090", "Address for the /metrics and /health HTTP server")
	rootCmd.PersistentFlags().String("containerd-socket", "", "containerd control socket path (default /run/containerd/containerd.sock)")
	rootCmd.PersistentFlags().String("kubeconfig", defaultKubeconfigPath(), "Path to kubeconfig (empty uses in-cluster config)")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if logLevel, _ := cmd.Flags().GetString("log-level"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logJSON, _ := cmd.Flags().GetBool("log-json")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	containerdSocket, _ := cmd.Flags().GetString("containerd-socket")
	kubeconfigPath, _ := cmd.Flags().GetString("kubeconfig")

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: logJSON})
	metrics.SetVersion(Version)

	logger := log.WithComponent("main")
	logger.Info().Str("version", Version).Str("commit", Commit).Str("node", cfg.NodeName).Msg("starting agent")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return wireAndRun(ctx, cfg, wireOptions{
		metricsAddr:      metricsAddr,
		containerdSocket: containerdSocket,
		kubeconfigPath:   kubeconfigPath,
	})
}

type wireOptions struct {
	metricsAddr      string
	containerdSocket string
	kubeconfigPath   string
}

func wireAndRun(ctx context.Context, cfg Config, opts wireOptions) error {
	logger := log.WithComponent("main")

	kubeClient, err := newKubeClient(opts.kubeconfigPath)
	if err != nil {
		return fmt.Errorf("build kubernetes client: %w", err)
	}

	resolver, err := container.New(opts.containerdSocket)
	if err != nil {
		return fmt.Errorf("connect to containerd: %w", err)
	}
	defer resolver.Close()

	reg := registry.New()
	em := emitter.New(cfg.APIEndpoint)
	metrics.UpdateComponent("emitter", true, "configured")

	inumCh := make(chan uint64, inumChannelCapacity)
	ignoredIPCh := make(chan string, ignoredIPChannelCapacity)

	loader, err := probe.NewLoader(inumCh, ignoredIPCh, cfg.IgnoreDaemonSetTraffic)
	if err != nil {
		return fmt.Errorf("load kernel probes: %w", err)
	}

	flowClassifier, err := classifier.New(reg, em, loader.NetworkEvents(), 0)
	if err != nil {
		return fmt.Errorf("construct flow classifier: %w", err)
	}

	syscallAggregator, err := sysaccount.New(reg, em, loader.SyscallEvents(), 0, 0)
	if err != nil {
		return fmt.Errorf("construct syscall aggregator: %w", err)
	}

	workloadWatcher := watch.NewWorkloadWatcher(kubeClient, resolver, reg, em, watch.WorkloadWatcherConfig{
		NodeName:           cfg.NodeName,
		ExcludedNamespaces: cfg.ExcludedNamespaces,
		IgnoreInfraTraffic: cfg.IgnoreDaemonSetTraffic,
		IsInfra:            isDaemonSetManaged,
	}, inumCh, ignoredIPCh)

	serviceWatcher := watch.NewServiceWatcher(kubeClient, em)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := loader.Run(gctx)
		metrics.UpdateComponent("probe", err == nil, errString(err))
		return err
	})
	g.Go(func() error {
		err := workloadWatcher.Run(gctx)
		metrics.UpdateComponent("registry", err == nil, errString(err))
		return err
	})
	g.Go(func() error { return serviceWatcher.Run(gctx) })
	g.Go(func() error { return flowClassifier.Run(gctx) })
	g.Go(func() error { return syscallAggregator.Run(gctx) })
	g.Go(func() error { return serveMetrics(gctx, opts.metricsAddr) })

	metrics.UpdateComponent("registry", true, "watching")
	metrics.UpdateComponent("probe", true, "attached")

	logger.Info().Str("metrics_addr", opts.metricsAddr).Msg("agent running")

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("component failed, shutting down")
		return err
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func errString(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
