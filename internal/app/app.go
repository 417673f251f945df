// Package app wires configuration, storage and the scanners into the duat
// command line.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duat/internal/analysis"
	"duat/internal/config"
	"duat/internal/delivery"
	"duat/internal/domain"
	"duat/internal/httpapi"
	"duat/internal/logging"
	"duat/internal/manpower"
	"duat/internal/notify"
	"duat/internal/scan"
	"duat/internal/schedule"
	"duat/internal/search"
	"duat/internal/storage/sqlite"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Main runs the root command and exits non-zero on error.
func Main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cli struct {
	jsonOut bool
	verbose bool
	save    bool
	cfg     config.Config
	logger  *zap.Logger
}

// NewRootCmd builds the duat command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "duat",
		Short: "Extract delivery and manpower records from DUAT daily reports",
		Long: `duat reads the weekly "PS-OHLR_DUAT_Daily Report_WK<week>_<year>.docx"
documents of a report folder and extracts delivery records (date, project,
quantity, line) and shift records (jobs, teams, EPIC roles, attendance, leave).

Configuration is read from config.yaml (or CONFIG_PATH) and the environment.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.cfg = config.MustLoad()
			logger, err := logging.New(c.cfg.LogLevel, c.verbose)
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose logging")

	scanCmd := &cobra.Command{
		Use:   "scan [folder]",
		Short: "Extract delivery records from every report in a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runScan,
	}
	scanCmd.Flags().BoolVar(&c.save, "save", false, "Store the run in the database")

	manpowerCmd := &cobra.Command{
		Use:   "manpower [folder]",
		Short: "Extract shift records and print the manpower analysis",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runManpower,
	}
	manpowerCmd.Flags().BoolVar(&c.save, "save", false, "Store the run in the database")

	searchCmd := &cobra.Command{
		Use:   "search [folder] [keyword]",
		Short: "Find a keyword in report paragraphs and table cells",
		Long: `Searches every report of the folder, ignoring case. With a single
argument the keyword is searched in the configured report_folder.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: c.runSearch,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with scheduled and watched rescans",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored scan runs",
		Args:  cobra.NoArgs,
		RunE:  c.runRuns,
	}

	root.AddCommand(scanCmd, manpowerCmd, searchCmd, serveCmd, runsCmd)
	return root
}

func (c *cli) folder(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if c.cfg.ReportFolder == "" {
		return "", errors.New("no folder given and report_folder is not configured")
	}
	return c.cfg.ReportFolder, nil
}

func (c *cli) openDB() (*sql.DB, error) {
	db, err := sqlite.InitDB(c.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	return db, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSkipped(w io.Writer, skipped []scan.Skip) {
	for _, s := range skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.File, s.Reason)
	}
}

func (c *cli) runScan(cmd *cobra.Command, args []string) error {
	folder, err := c.folder(args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	started := time.Now()
	parser := delivery.NewDailyReportParser(folder,
		delivery.WithLogger(c.logger), delivery.WithKeywords(c.cfg.Keywords))
	files := len(parser.ReportFiles())
	records, err := parser.ProcessAll(ctx, nil)
	if err != nil {
		return err
	}

	if c.save {
		db, err := c.openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		run, err := sqlite.SaveDeliveryRun(db, sqlite.ScanRun{
			Folder:     folder,
			Files:      files,
			Processed:  files - len(parser.Skipped()),
			MaxWeek:    parser.MaxWeek(),
			Skipped:    parser.Skipped(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		}, records)
		if err != nil {
			return fmt.Errorf("error storing delivery run: %w", err)
		}
		c.logger.Info("stored delivery run", zap.String("run_id", run.ID))
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		return writeJSON(out, map[string]any{
			"folder":        folder,
			"total_files":   files,
			"total_records": len(records),
			"max_week":      parser.MaxWeek(),
			"records":       records,
			"skipped":       parser.Skipped(),
		})
	}

	fmt.Fprintf(out, "Parsed %d reports in %s: %d delivery records (latest WK%d)\n",
		files, folder, len(records), parser.MaxWeek())
	printSkipped(out, parser.Skipped())
	for _, p := range analysis.Summarize(records, parser.MaxWeek(), int(time.Now().Month())) {
		fmt.Fprintf(out, "%3d. %-32s qty=%-8g nth=%d\n", p.Rank, p.Project, p.QtyDelivered, p.TotalNTH)
	}
	return nil
}

func (c *cli) runManpower(cmd *cobra.Command, args []string) error {
	folder, err := c.folder(args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	started := time.Now()
	parser := manpower.NewManpowerParser(folder, manpower.WithLogger(c.logger))
	files := len(parser.ReportFiles())
	records, err := parser.ProcessAll(ctx)
	if err != nil {
		return err
	}

	if c.save {
		db, err := c.openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := sqlite.SaveManpowerRun(db, sqlite.ScanRun{
			Folder:     folder,
			Files:      files,
			Processed:  files - len(parser.Skipped()),
			Skipped:    parser.Skipped(),
			StartedAt:  started,
			FinishedAt: time.Now(),
		}, records); err != nil {
			return fmt.Errorf("error storing manpower run: %w", err)
		}
	}

	report := analysis.Manpower(records)
	out := cmd.OutOrStdout()
	if c.jsonOut {
		return writeJSON(out, map[string]any{
			"total_files":   files,
			"total_records": len(records),
			"total_jobs":    domain.TotalJobs(records),
			"analysis":      report,
			"skipped":       parser.Skipped(),
		})
	}

	fmt.Fprintf(out, "Parsed %d reports in %s: %d shift records, %d jobs\n",
		files, folder, len(records), domain.TotalJobs(records))
	printSkipped(out, parser.Skipped())
	k := report.KPIs
	fmt.Fprintf(out, "Avg workers per job: %.1f\nUnique staff: %d\nTop role holder: %s (%d)\n",
		k.AvgWorkersPerJob, k.UniqueStaffCount, k.TopRoleHolder, k.TopRoleHolderCount)
	return nil
}

func (c *cli) runSearch(cmd *cobra.Command, args []string) error {
	folderArgs, keyword := args[:len(args)-1], args[len(args)-1]
	folder, err := c.folder(folderArgs)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	result, err := search.New(c.logger).Search(ctx, folder, keyword)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOut {
		return writeJSON(out, result)
	}
	fmt.Fprintf(out, "%q found in %d of %d reports\n", result.Keyword, result.MatchedFiles, result.TotalFiles)
	for _, fm := range result.Results {
		fmt.Fprintln(out, fm.Filename)
		for _, m := range fm.Matches {
			fmt.Fprintf(out, "  [%s] %s\n", m.Location, m.Text)
		}
	}
	printSkipped(out, result.Skipped)
	return nil
}

func (c *cli) runRuns(cmd *cobra.Command, _ []string) error {
	db, err := c.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := sqlite.ListScanRuns(db, 20)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if c.jsonOut {
		return writeJSON(out, runs)
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %-8s  %s  files=%d records=%d skipped=%d  %s\n",
			r.ID, r.Kind, r.FinishedAt.In(c.cfg.Location).Format("2006-01-02 15:04"),
			r.Files, r.RecordCount, len(r.Skipped), r.Folder)
	}
	return nil
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	cfg := c.cfg
	logger := c.logger
	logger.Info("config loaded",
		zap.String("report_folder", cfg.ReportFolder),
		zap.String("db_path", cfg.DBPath),
		zap.String("timezone", cfg.Timezone),
		zap.String("rescan_schedule", cfg.RescanSchedule),
		zap.Bool("watch_folder", cfg.WatchFolder),
		zap.Bool("slack", cfg.SlackConfigured()),
		zap.Duration("external_http_timeout", cfg.ExternalHTTPTimeout()),
	)

	db, err := c.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("path", cfg.DBPath))

	ctx, cancel := signalContext()
	defer cancel()

	rescanner := &schedule.Rescanner{
		Folder:    cfg.ReportFolder,
		Keywords:  cfg.Keywords,
		DB:        db,
		Retention: cfg.Retention(),
		Logger:    logger,
	}
	if cfg.SlackConfigured() {
		rescanner.Notifier = notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannelID, cfg.ExternalHTTPTimeout(), logger)
	}

	api := httpapi.New(httpapi.Options{
		Logger:              logger,
		DB:                  db,
		ReportFolder:        cfg.ReportFolder,
		Keywords:            cfg.Keywords,
		DefaultProductivity: cfg.DefaultProductivity,
		BaseContext:         ctx,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http api listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		return schedule.RunRescanScheduler(gctx, cfg.RescanSchedule, cfg.Location, rescanner)
	})
	if cfg.WatchFolder {
		g.Go(func() error {
			return schedule.NewWatcher(rescanner, 0).Run(gctx)
		})
	}

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
