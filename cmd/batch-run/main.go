// Package main 批量章节生成命令行入口
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"z-novel-batch/internal/config"
	"z-novel-batch/internal/wire"
	"z-novel-batch/pkg/logger"
	"z-novel-batch/pkg/tracer"
)

var (
	configDir string
	logLevel  string

	rootCmd = &cobra.Command{
		Use:   "batch-run",
		Short: "Batch chapter generation for z-novel",
		Long: `batch-run drives the novel backend from the command line.
It detects where a novel stopped, generates the next chapters one by one
and streams the run log to the terminal. Ctrl-C stops after the chapter
in progress.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "configs", "config directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override observability.logging.level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 加载配置并初始化日志，CLI 日志输出到 stderr
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadFrom(configDir)
	if err != nil {
		return nil, err
	}
	level := cfg.Observability.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger.InitWithWriter(os.Stderr, level, "text")
	return cfg, nil
}

// withRunner 初始化依赖后执行 fn，结束时释放资源
func withRunner(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, runner *wire.Runner) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shutdownTracer, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	runner, cleanup, err := wire.InitializeRunner(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	return fn(ctx, cfg, runner)
}
