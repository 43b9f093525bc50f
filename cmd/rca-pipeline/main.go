package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aiopskit/rca-pipeline/internal/api"
	"github.com/aiopskit/rca-pipeline/internal/config"
	"github.com/aiopskit/rca-pipeline/internal/correlate"
	"github.com/aiopskit/rca-pipeline/internal/ingest"
	"github.com/aiopskit/rca-pipeline/internal/metrics"
	"github.com/aiopskit/rca-pipeline/internal/models"
	"github.com/aiopskit/rca-pipeline/internal/pipeline"
	"github.com/aiopskit/rca-pipeline/internal/report"
	"github.com/aiopskit/rca-pipeline/internal/rootcause"
	"github.com/aiopskit/rca-pipeline/internal/services"
	"github.com/aiopskit/rca-pipeline/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "rca-pipeline",
		Short:         "Correlates fleet logs and metrics, scores anomalies, and writes a ranked root-cause report",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to configuration file")

	cmd.AddCommand(newAnalyzeCmd(flags))
	cmd.AddCommand(newServeCmd(flags))
	return cmd
}

type analyzeFlags struct {
	logsDir       string
	metricsDir    string
	out           string
	correlatedOut string
	contamination float64
	tolerance     time.Duration
	seed          int64
}

func newAnalyzeCmd(root *rootFlags) *cobra.Command {
	flags := &analyzeFlags{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one batch analysis over dumped log and metric files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd.Context(), root, flags)
		},
	}

	cmd.Flags().StringVar(&flags.logsDir, "logs", "ops/logs", "directory of per-service log dumps (*.txt)")
	cmd.Flags().StringVar(&flags.metricsDir, "metrics", "ops/metrics", "directory of per-service metric dumps (*.txt)")
	cmd.Flags().StringVar(&flags.out, "out", "aiops_report.json", "report output path")
	cmd.Flags().StringVar(&flags.correlatedOut, "correlated-out", "", "optional CSV path for the intermediate correlated dataset")
	cmd.Flags().Float64Var(&flags.contamination, "contamination", 0, "override expected anomalous fraction (0 keeps config value)")
	cmd.Flags().DurationVar(&flags.tolerance, "tolerance", 0, "override correlation tolerance (0 keeps config value)")
	cmd.Flags().Int64Var(&flags.seed, "seed", -1, "override scorer seed (-1 keeps config value)")
	return cmd
}

func runAnalyze(ctx context.Context, root *rootFlags, flags *analyzeFlags) error {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}
	if flags.contamination != 0 {
		cfg.Pipeline.Contamination = flags.contamination
	}
	if flags.tolerance != 0 {
		cfg.Pipeline.CorrelationTolerance = flags.tolerance
	}
	if flags.seed >= 0 {
		cfg.Pipeline.Seed = flags.seed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	service, err := buildService(cfg, logger)
	if err != nil {
		return err
	}

	logs, logSkipped, err := ingest.LoadLogFiles(globDumps(flags.logsDir))
	if err != nil {
		return utils.NewAppError("analyze", "load logs", err)
	}
	metricSeries, metricSkipped, err := ingest.LoadMetricFiles(globDumps(flags.metricsDir))
	if err != nil {
		return utils.NewAppError("analyze", "load metrics", err)
	}
	metrics.AddRecordsSkipped(logSkipped + metricSkipped)
	if logSkipped+metricSkipped > 0 {
		logger.Warn("skipped malformed input",
			slog.Int("log_lines", logSkipped),
			slog.Int("metric_rows", metricSkipped),
		)
	}

	if flags.correlatedOut != "" {
		if err := writeCorrelatedCSV(flags.correlatedOut, service, logs, metricSeries); err != nil {
			return err
		}
		logger.Info("correlated dataset written", slog.String("path", flags.correlatedOut))
	}

	result, err := service.Analyze(ctx, logs, metricSeries)
	if err != nil {
		return err
	}

	out, err := os.Create(flags.out)
	if err != nil {
		return utils.NewAppError("analyze", "create report file", err)
	}
	defer out.Close()
	if err := report.WriteJSON(out, result); err != nil {
		return utils.NewAppError("analyze", "write report", err)
	}

	logger.Info("report written",
		slog.String("path", flags.out),
		slog.Int("anomalies", result.Summary.AnomalyCount),
	)
	return nil
}

func newServeCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the analysis over HTTP with Prometheus instrumentation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(root)
		},
	}
}

func runServe(root *rootFlags) error {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	service, err := buildService(cfg, logger)
	if err != nil {
		return err
	}

	handler := api.NewHandler(logger, service)
	server, err := api.NewServer(cfg.Server, handler.Routes())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	logger.Info("rca-pipeline stopped")
	return nil
}

func buildService(cfg *config.Config, logger *slog.Logger) (*services.AnalysisService, error) {
	rules, err := rootcause.LoadRulePack(cfg.Rules.Path, logger)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(cfg, rules, logger)
	return services.NewAnalysisService(logger, p), nil
}

// globDumps lists the *.txt dumps under dir in stable order. A missing or
// empty directory simply yields no paths; the pipeline handles the empty
// batch downstream.
func globDumps(dir string) []string {
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil
	}
	sort.Strings(paths)
	return paths
}

func writeCorrelatedCSV(path string, service *services.AnalysisService, logs []models.LogRecord, metricSeries map[string][]models.MetricSnapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return utils.NewAppError("analyze", "create correlated dataset file", err)
	}
	defer f.Close()
	return correlate.WriteCSV(f, service.Correlate(logs, metricSeries))
}
