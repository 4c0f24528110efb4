package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/watercolumn/internal/adcp"
	"github.com/banshee-data/watercolumn/internal/api"
	"github.com/banshee-data/watercolumn/internal/config"
	"github.com/banshee-data/watercolumn/internal/db"
	"github.com/banshee-data/watercolumn/internal/discovery"
	"github.com/banshee-data/watercolumn/internal/display"
	"github.com/banshee-data/watercolumn/internal/publish"
	"github.com/banshee-data/watercolumn/internal/serialmux"
	"github.com/banshee-data/watercolumn/internal/timeutil"
	"github.com/banshee-data/watercolumn/internal/units"
	"github.com/banshee-data/watercolumn/internal/version"
	"github.com/banshee-data/watercolumn/internal/watercolumn"
)

var (
	listen      = flag.String("listen", envOr("WATERCOLUMN_LISTEN", ":8080"), "Listen address")
	configFile  = flag.String("config", envOr("WATERCOLUMN_CONFIG", ""), "Averaging config file (.json, .yaml or .yml)")
	dbPath      = flag.String("db", envOr("WATERCOLUMN_DB", "watercolumn.db"), "SQLite history database; empty disables history")
	retention   = flag.Duration("retention", 7*24*time.Hour, "Delete stored reports older than this; 0 keeps everything")
	speedUnits  = flag.String("units", envOr("WATERCOLUMN_UNITS", units.MPS), "Default speed units for the API ("+units.GetValidUnitsString()+")")
	disableADCP = flag.Bool("disable-adcp", false, "Run without an ADCP attached")
	simulateRun = flag.Bool("simulate", false, "Replay a simulated tidal current instead of reading the ADCP")
	autoStart   = flag.Bool("start-pinging", false, "Send the command set and START once the ADCP port is open")
	redisAddr   = flag.String("redis", envOr("WATERCOLUMN_REDIS", ""), "Redis address for publishing snapshots; empty disables")
	redisPrefix = flag.String("redis-prefix", "watercolumn", "Redis key prefix")
	webhookURL  = flag.String("webhook", envOr("WATERCOLUMN_WEBHOOK", ""), "URL to POST each new snapshot to")
	mdns        = flag.Bool("mdns", false, "Advertise the HTTP server over mDNS")
	showVersion = flag.Bool("version", false, "Print version and exit")

	adcpPort = portFlags{
		path: flag.String("adcp-port", "", "ADCP serial port"),
		baud: flag.Int("adcp-baud", 0, "ADCP baud rate"),
	}
	gpsPort = portFlags{
		path: flag.String("gps-port", "", "GPS NMEA serial port; empty disables GPS"),
		baud: flag.Int("gps-baud", 0, "GPS baud rate"),
	}
	outputPort = portFlags{
		path: flag.String("output-port", "", "Serial port receiving $RTIAWC records; empty disables"),
		baud: flag.Int("output-baud", 0, "Output baud rate"),
	}
)

var envOnce sync.Once

// envOr returns the environment value for key, loading .env on first use.
func envOr(key, def string) string {
	envOnce.Do(loadEnv)
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// loadEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
}

func loadConfig(path string) (*config.AveragingConfig, error) {
	if path == "" {
		return config.EmptyAveragingConfig(), nil
	}
	cfg, err := config.LoadAveragingConfig(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded averaging config from %s", path)
	return cfg, nil
}

func runMigrate(args []string) {
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	path := flags.String("db", envOr("WATERCOLUMN_DB", "watercolumn.db"), "SQLite database")
	flags.Parse(args)
	if err := db.RunMigrateCommand(os.Stdout, flags.Args(), *path); err != nil {
		log.Fatalf("migrate: %v", err)
	}
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrate(os.Args[2:])
		return
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	log.Print(version.String())

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid units %q, must be one of: %s", *speedUnits, units.GetValidUnitsString())
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ports := resolvePorts(cfg)

	clock := timeutil.RealClock{}
	procOpts := []watercolumn.Option{watercolumn.WithClock(clock)}
	var nav *adcp.NavTracker
	if ports.gps != nil {
		nav = adcp.NewNavTracker(clock, 0)
		procOpts = append(procOpts, watercolumn.WithNavTracker(nav))
	}
	proc, err := watercolumn.NewProcessor(cfg.ToWatercolumn(), procOpts...)
	if err != nil {
		log.Fatalf("failed to create processor: %v", err)
	}

	var adcpSerial serialmux.SerialMuxInterface
	switch {
	case *simulateRun:
		adcpSerial, err = simulatedADCP(time.Second)
	case *disableADCP:
		adcpSerial = serialmux.NewDisabledSerialMux("adcp")
	case ports.adcp == nil:
		log.Fatal("ADCP port is required (use -adcp-port, -simulate or -disable-adcp)")
	default:
		adcpSerial, err = openPort("adcp", ports.adcp)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer adcpSerial.Close()

	gpsSerial, err := openPort("gps", ports.gps)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer gpsSerial.Close()

	if ports.output != nil {
		outSerial, err := openPort("output", ports.output)
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer outSerial.Close()
		proc.AddSink(watercolumn.PortSink{Port: outSerial})
	}

	var store *db.DB
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		history := watercolumn.Async(watercolumn.NewOnly(store), 0)
		defer history.Close()
		proc.AddSink(history)
	}

	hub := display.NewHub(proc.Snapshot)
	defer hub.Close()
	proc.AddSink(hub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisSink, err := publish.NewRedisSink(ctx, publish.RedisOptions{
		Addr:     *redisAddr,
		Password: os.Getenv("WATERCOLUMN_REDIS_PASSWORD"),
		Prefix:   *redisPrefix,
	})
	switch {
	case errors.Is(err, publish.ErrRedisDisabled):
	case err != nil:
		log.Printf("redis publishing unavailable: %v", err)
	default:
		defer redisSink.Close()
		shore := watercolumn.Async(watercolumn.NewOnly(redisSink), 0)
		defer shore.Close()
		proc.AddSink(shore)
	}

	if *webhookURL != "" {
		client := &http.Client{Timeout: 5 * time.Second}
		hook := watercolumn.Async(watercolumn.NewOnly(publish.NewWebhookSink(*webhookURL, client)), 0)
		defer hook.Close()
		proc.AddSink(hook)
	}

	var wg sync.WaitGroup

	// run the monitor routines to manage IO on the serial ports
	for _, m := range []serialmux.SerialMuxInterface{adcpSerial, gpsSerial} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial monitor stopped: %v", err)
			}
		}()
	}

	// ensembles from the ADCP feed the averager
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, lines := adcpSerial.Subscribe()
		defer adcpSerial.Unsubscribe(id)
		if err := proc.Consume(ctx, lines); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ensemble consumer stopped: %v", err)
		}
		log.Print("ensemble consumer terminated")
	}()

	if nav != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, lines := gpsSerial.Subscribe()
			defer gpsSerial.Unsubscribe(id)
			if err := serialmux.FeedNavigation(ctx, lines, nav); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("navigation feed stopped: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("output ticker stopped: %v", err)
		}
		log.Print("output ticker terminated")
	}()

	if store != nil && *retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneReports(ctx, store, *retention)
		}()
	}

	if *autoStart {
		if err := adcpSerial.StartPinging(cfg.GetCommandSet()); err != nil {
			log.Printf("failed to start pinging: %v", err)
		} else {
			log.Print("ADCP pinging started")
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiOpts := []api.Option{
			api.WithUnits(*speedUnits),
			api.WithConfig(cfg),
			api.WithClock(clock),
			api.WithLiveHandler(hub),
		}
		if store != nil {
			apiOpts = append(apiOpts, api.WithDB(store))
		}
		if *configFile != "" {
			apiOpts = append(apiOpts, api.WithConfigSaver(func(c *config.AveragingConfig) error {
				return config.SaveAveragingConfig(*configFile, c)
			}))
		}
		mux := api.NewServer(proc, adcpSerial, apiOpts...).ServeMux()

		adcpSerial.AttachAdminRoutes(mux)
		gpsSerial.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		if *mdns {
			if adv, err := advertise(*listen, *speedUnits); err != nil {
				log.Printf("mDNS disabled: %v", err)
			} else {
				defer adv.Stop()
			}
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
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
}

// advertise registers the listen port over mDNS.
func advertise(addr, u string) (*discovery.Advertiser, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen port %q", portStr)
	}
	adv := discovery.NewAdvertiser("", port, u)
	if err := adv.Start(); err != nil {
		return nil, err
	}
	return adv, nil
}

// pruneReports deletes reports older than keep once an hour.
func pruneReports(ctx context.Context, store *db.DB, keep time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := store.PruneReports(ctx, time.Now().Add(-keep))
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to prune reports: %v", err)
		} else if n > 0 {
			log.Printf("pruned %d reports older than %s", n, keep)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
