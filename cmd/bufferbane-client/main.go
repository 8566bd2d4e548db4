package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"

	"github.com/schuellerf/bufferbane/alert"
	"github.com/schuellerf/bufferbane/chart"
	bbclient "github.com/schuellerf/bufferbane/client"
	"github.com/schuellerf/bufferbane/export"
	"github.com/schuellerf/bufferbane/storage"
)

const maintenanceInterval = time.Hour

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "bufferbane-client"
	app.Usage = "residential network quality monitor"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:     "c",
			Usage:    "path to the client JSON configuration",
			Required: true,
		},
		cli.BoolFlag{
			Name:  "export-csv",
			Usage: "export stored measurements from the last 24h to CSV and exit",
		},
		cli.BoolFlag{
			Name:  "export-charts",
			Usage: "render latency SVG charts for the configured default targets and exit",
		},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := bbclient.LoadConfig(c.String("c"))
	if err != nil {
		return err
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	db, err := storage.Open(cfg.General.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		return err
	}

	if c.Bool("export-csv") {
		return exportLast24Hours(db, cfg)
	}
	if c.Bool("export-charts") {
		return exportCharts(db, cfg)
	}

	iface := "default"
	if len(cfg.General.Interfaces) > 0 {
		iface = cfg.General.Interfaces[0]
	}

	icmpProber, err := bbclient.NewIcmpProber(cfg.Targets, nil, iface, cfg.General.ConnectionType)
	if err != nil {
		log.Warn().Err(err).Msg("ICMP prober disabled")
	}

	var echoClient *bbclient.EchoClient
	if cfg.Server != nil && cfg.Server.Enabled {
		var clientID uint64
		fmt.Sscanf(cfg.General.ClientID, "%x", &clientID)
		echoClient, err = bbclient.NewEchoClient(cfg.Server, clientID, iface, cfg.General.ConnectionType, log)
		if err != nil {
			log.Warn().Err(err).Msg("server echo test disabled")
		} else {
			defer echoClient.Close()
		}
	}

	alertManager := alert.NewManager(alert.ThresholdsFromConfig(cfg.Alerts), log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.TestInterval())
	defer ticker.Stop()

	maintenanceTicker := time.NewTicker(maintenanceInterval)
	defer maintenanceTicker.Stop()

	log.Info().Str("client_id", cfg.General.ClientID).Dur("interval", cfg.TestInterval()).Msg("bufferbane-client starting")

	for {
		select {
		case <-ticker.C:
			runCycle(db, icmpProber, echoClient, alertManager, log)
		case <-maintenanceTicker.C:
			runMaintenance(db, cfg, log)
		case <-sigCh:
			log.Info().Msg("shutting down")
			return nil
		}
	}
}

// runMaintenance rolls the previous hour's raw measurements into
// hourly_rollups and prunes data older than the configured retention
// windows. It runs on its own ticker, separate from the test cadence.
func runMaintenance(db *storage.DB, cfg *bbclient.Config, log zerolog.Logger) {
	completedHour := time.Now().Add(-maintenanceInterval).Truncate(time.Hour)
	if err := db.Rollup(completedHour); err != nil {
		log.Warn().Err(err).Time("hour", completedHour).Msg("failed to roll up hourly measurements")
	}

	now := time.Now()
	measurementsBefore := now.AddDate(0, 0, -cfg.Retention.MeasurementsDays)
	rollupsBefore := now.AddDate(0, 0, -cfg.Retention.AggregationsDays)
	eventsBefore := now.AddDate(0, 0, -cfg.Retention.EventsDays)
	if err := db.PruneOlderThan(measurementsBefore, eventsBefore, rollupsBefore); err != nil {
		log.Warn().Err(err).Msg("failed to prune expired data")
	}
}

// runCycle performs one round of tests, stores the results, and
// evaluates alerts over the batch.
func runCycle(db *storage.DB, icmpProber *bbclient.IcmpProber, echoClient *bbclient.EchoClient, alertManager *alert.Manager, log zerolog.Logger) {
	var batch []bbclient.Measurement

	if icmpProber != nil {
		batch = append(batch, icmpProber.RunTests()...)
	}
	if echoClient != nil {
		batch = append(batch, echoClient.RunTest())
	}

	for _, m := range batch {
		if err := db.StoreMeasurement(m); err != nil {
			log.Warn().Err(err).Str("target", m.Target).Msg("failed to store measurement")
		}
	}

	events := alertManager.Check(batch)
	for _, ev := range events {
		storageEvent := storage.Event{
			EventType: ev.EventType,
			Target:    ev.Target,
			Severity:  ev.Severity,
			Message:   ev.Message,
			Value:     &ev.Value,
			Threshold: &ev.Threshold,
		}
		if err := db.StoreEvent(storageEvent, time.Now()); err != nil {
			log.Warn().Err(err).Msg("failed to store alert event")
		}
	}
}

func exportLast24Hours(db *storage.DB, cfg *bbclient.Config) error {
	end := time.Now()
	start := end.Add(-24 * time.Hour)

	measurements, err := db.QueryRange(start, end)
	if err != nil {
		return err
	}

	dir := cfg.Export.ExportDirectory
	if dir == "" {
		dir = "."
	}
	path := fmt.Sprintf("%s/bufferbane-export-%s.csv", dir, end.Format("20060102-150405"))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export.WriteCSV(f, measurements); err != nil {
		return err
	}
	fmt.Println("wrote", path)
	return nil
}

// chartFilenameReplacer maps characters that are unsafe in filenames
// (notably the colons in IPv6 targets) to underscores.
var chartFilenameReplacer = strings.NewReplacer(":", "_", "/", "_", " ", "_")

func exportCharts(db *storage.DB, cfg *bbclient.Config) error {
	if !cfg.Export.EnableCharts {
		return fmt.Errorf("cmd: charts are disabled (export.enable_charts=false)")
	}
	if len(cfg.Export.DefaultCharts) == 0 {
		return fmt.Errorf("cmd: no chart targets configured (export.default_charts is empty)")
	}

	end := time.Now()
	start := end.Add(-24 * time.Hour)
	measurements, err := db.QueryRange(start, end)
	if err != nil {
		return err
	}

	dir := cfg.Export.ExportDirectory
	if dir == "" {
		dir = "."
	}

	opts := chart.DefaultOptions()
	if cfg.Export.ChartWidth > 0 {
		opts.Width = cfg.Export.ChartWidth
	}
	if cfg.Export.ChartHeight > 0 {
		opts.Height = cfg.Export.ChartHeight
	}

	for _, target := range cfg.Export.DefaultCharts {
		var series []bbclient.Measurement
		for _, m := range measurements {
			if m.Target == target {
				series = append(series, m)
			}
		}
		opts.Title = fmt.Sprintf("Latency: %s", target)
		svg := chart.RenderLatencySeriesSVG(series, opts)

		path := fmt.Sprintf("%s/bufferbane-chart-%s-%s.svg", dir,
			chartFilenameReplacer.Replace(target), end.Format("20060102-150405"))
		if err := os.WriteFile(path, []byte(svg), 0o644); err != nil {
			return fmt.Errorf("cmd: writing chart for %s: %w", target, err)
		}
		fmt.Println("wrote", path)
	}
	return nil
}
