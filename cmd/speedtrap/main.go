package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/speedtrap/internal/api"
	"github.com/banshee-data/speedtrap/internal/config"
	"github.com/banshee-data/speedtrap/internal/db"
	"github.com/banshee-data/speedtrap/internal/engine"
	"github.com/banshee-data/speedtrap/internal/monitoring"
	"github.com/banshee-data/speedtrap/internal/physics"
	"github.com/banshee-data/speedtrap/internal/sim"
	"github.com/banshee-data/speedtrap/internal/units"
	"github.com/banshee-data/speedtrap/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Path to JSON configuration file")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	dbPath      = flag.String("db", "", "Path to sqlite database (overrides config)")
	unitsFlag   = flag.String("units", "", "Speed units for output: "+units.GetValidUnitsString())
	showVersion = flag.Bool("version", false, "Print version and exit")
	quiet       = flag.Bool("quiet", false, "Mute per-run engine diagnostics")

	// Headless mode runs one simulation and prints the verdict.
	headless = flag.Bool("headless", false, "Run a single simulation without the HTTP server")
	speed    = flag.Float64("speed", 0, "Initial speed in km/h (headless)")
	distance = flag.Float64("distance", 0, "Distance to the checkpoint in metres (headless)")
	zone     = flag.String("zone", "", "Zone: residential, urban or highway (headless)")
	weather  = flag.String("weather", "", "Weather: dry, rainy or snowy (headless)")
	brakeAt  = flag.Float64("brake-at", -1, "Seconds into the run to brake; negative never brakes (headless)")
	record   = flag.Bool("record", false, "Store the headless run in the database")
)

// loadConfig reads the config file. A missing file at the default path is not
// an error: every setting has a default.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		if path == config.DefaultConfigPath && errors.Is(err, fs.ErrNotExist) {
			return &config.Config{}, nil
		}
		return nil, err
	}
	return cfg, nil
}

// applyFlags overrides config values with any flags that were set.
func applyFlags(cfg *config.Config, listenAddr, db, u string) error {
	if listenAddr != "" {
		cfg.Listen = &listenAddr
	}
	if db != "" {
		cfg.DBPath = &db
	}
	if u != "" {
		cfg.Units = &u
	}
	return cfg.Validate()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := applyFlags(cfg, *listen, *dbPath, *unitsFlag); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], cfg.GetDBPath()); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *headless {
		if err := runHeadless(os.Stdout, cfg); err != nil {
			log.Fatal(err)
		}
		return
	}

	log.Printf("Starting %s", version.String())
	if err := serve(cfg); err != nil {
		log.Fatal(err)
	}
}

// headlessParams builds run parameters from the headless flags.
func headlessParams(cfg *config.Config, speedKph, distanceM float64, zoneName, weatherName string) (sim.Params, error) {
	p := sim.Params{
		InitialSpeedKph: speedKph,
		TotalDistanceM:  distanceM,
		Zone:            cfg.GetDefaultZone(),
		Weather:         cfg.GetDefaultWeather(),
	}
	if zoneName != "" {
		z, err := physics.ParseZone(zoneName)
		if err != nil {
			return p, err
		}
		p.Zone = z
	}
	if weatherName != "" {
		p.Weather = physics.ParseWeather(weatherName)
	}
	return p, p.Validate()
}

func runHeadless(w io.Writer, cfg *config.Config) error {
	p, err := headlessParams(cfg, *speed, *distance, *zone, *weather)
	if err != nil {
		return fmt.Errorf("invalid run parameters: %w", err)
	}

	opts := engine.SimulateOptions{
		FrameInterval: cfg.GetFrameInterval(),
		MaxDuration:   cfg.GetMaxRunDuration(),
	}
	if *brakeAt >= 0 {
		opts.Brake = true
		opts.BrakeAtS = *brakeAt
	}
	res, err := engine.Simulate(p, opts)
	if err != nil && !errors.Is(err, engine.ErrRunTimeout) {
		return err
	}

	if *record {
		store, err := db.NewDB(cfg.GetDBPath())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		if err := store.RecordResult(res); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
	}

	writeReport(w, res, cfg.GetUnits())
	return nil
}

// writeReport prints a run's verdict, physics breakdown and advice.
func writeReport(w io.Writer, res engine.Result, u string) {
	fmt.Fprintf(w, "run %s\n", res.RunID)
	fmt.Fprintf(w, "  zone %s, weather %s, %.1f m to checkpoint\n",
		res.Params.Zone, res.Params.Weather, res.Params.TotalDistanceM)

	v := res.Verdict
	if v == nil {
		msg := "no verdict"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		fmt.Fprintf(w, "  aborted: %s\n", msg)
		return
	}

	spd := func(kph float64) string {
		return fmt.Sprintf("%.1f %s", units.ConvertKph(kph, u), u)
	}
	outcome := "within the limit"
	if v.ExceededLimit {
		outcome = "SPEEDING"
	}
	fmt.Fprintf(w, "  verdict: %s\n", outcome)
	fmt.Fprintf(w, "  final speed %s, limit %s\n", spd(v.FinalSpeedKph), spd(v.SpeedLimitKph))
	fmt.Fprintf(w, "  max %s, mean %s\n", spd(v.MaxSpeedKph), spd(v.MeanSpeedKph))
	fmt.Fprintf(w, "  covered %.1f m in %.2f s\n", v.TotalDistanceCoveredM, v.TotalTimeS)
	if v.StoppedShort {
		fmt.Fprintf(w, "  stopped %.1f m short of the checkpoint\n", res.Params.TotalDistanceM-v.TotalDistanceCoveredM)
	}
	fmt.Fprintf(w, "  reference braking distance %.1f m\n", v.BrakingDistanceM)

	a := sim.Analyze(res.Params, *v)
	fmt.Fprintf(w, "  friction μ=%.2f, force %.0f N, kinetic energy %.0f J\n",
		a.FrictionCoefficient, a.FrictionForceN, a.KineticEnergyJ)
	if !math.IsInf(a.AverageBrakePowerW, 0) && !math.IsNaN(a.AverageBrakePowerW) {
		fmt.Fprintf(w, "  braking work %.0f J, average power %.0f W\n", a.BrakingWorkJ, a.AverageBrakePowerW)
	}

	for _, tip := range sim.SafetyTips(v.ExceededLimit) {
		fmt.Fprintf(w, "  - %s\n", tip)
	}
}

func serve(cfg *config.Config) error {
	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	if *quiet {
		monitoring.SetLogger(nil)
	}

	e := engine.New(engine.Options{
		FrameInterval:  cfg.GetFrameInterval(),
		MaxRunDuration: cfg.GetMaxRunDuration(),
		OnFinish: func(res engine.Result) {
			if err := store.RecordResult(res); err != nil {
				log.Printf("failed to record run %s: %v", res.RunID, err)
			}
		},
	})
	defer e.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(ctx, e, store, cfg).ServeMux()
		server := &http.Server{
			Addr:    cfg.GetListen(),
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("HTTP server listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}
