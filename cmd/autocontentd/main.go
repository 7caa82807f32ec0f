package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tontroys3/AutoWebBuilder/internal/analytics"
	"github.com/tontroys3/AutoWebBuilder/internal/api"
	"github.com/tontroys3/AutoWebBuilder/internal/circuitbreaker"
	"github.com/tontroys3/AutoWebBuilder/internal/config"
	"github.com/tontroys3/AutoWebBuilder/internal/cron"
	appdomain "github.com/tontroys3/AutoWebBuilder/internal/domain"
	"github.com/tontroys3/AutoWebBuilder/internal/generation"
	"github.com/tontroys3/AutoWebBuilder/internal/imagesearch"
	"github.com/tontroys3/AutoWebBuilder/internal/keypool"
	"github.com/tontroys3/AutoWebBuilder/internal/leaderelection"
	"github.com/tontroys3/AutoWebBuilder/internal/metrics"
	"github.com/tontroys3/AutoWebBuilder/internal/pipeline"
	"github.com/tontroys3/AutoWebBuilder/internal/registry"
	"github.com/tontroys3/AutoWebBuilder/internal/retention"
	"github.com/tontroys3/AutoWebBuilder/internal/scheduler"
	"github.com/tontroys3/AutoWebBuilder/internal/store/postgres"

	_ "github.com/lib/pq"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

// Circuit breaker settings for the shared remote services.
const (
	breakerThreshold = 5
	breakerCooldown  = 2 * time.Minute
)

// Leader election settings. The lock key is arbitrary but must match
// across every instance sharing the database.
const (
	leaderLockKey           = 73556081
	leaderRetryInterval     = 15 * time.Second
	leaderHeartbeatInterval = 5 * time.Second
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`autocontentd - per-domain content scheduling daemon

Usage:
  autocontentd <command>

Commands:
  serve      Start the domain schedulers and HTTP API
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  GENERATOR_URL             Text-generation endpoint (required)
  GENERATOR_API_KEY         Text-generation API key (optional)
  GENERATOR_MODEL           Text-generation model name (default: "gpt-4o-mini")

  IMAGE_API_KEYS            Comma-separated image-search credentials
                            (omit to fall back to scraping)
  IMAGE_API_URL             Image-search API endpoint (default: Bing v7)
  IMAGE_RATE_PER_SEC        Outbound image-search rate (default: "2")
  KEY_CEILING               Per-credential hourly call ceiling (default: "1000")
  KEY_BUFFER                Safety margin below the ceiling (default: "10")

  DOMAINS_FILE              YAML file of per-domain posting settings (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080"; PORT also honored)

  DATABASE_URL              PostgreSQL archive connection string (optional)
  ARCHIVE_RETENTION         Prune archived records older than this (default: disabled)
  LEADER_ELECTION_ENABLED   Only the advisory-lock leader schedules (default: "false")
  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")

  REDIS_ADDR                Redis address for analytics counters (optional)
  ANALYTICS_RETENTION       Counter retention (default: "720h")

  CALL_TIMEOUT              Per-call timeout for remote services (default: "30s")
  CAP_BACKOFF               Sleep after the daily cap is reached (default: "1h")
  RETRY_BACKOFF             Sleep after a failed generation cycle (default: "30m")
  CHECK_GRANULARITY         Stop-latency bound for scheduler sleeps (default: "1m")
  SCHEDULER_DRAIN_TIMEOUT   Shutdown wait for domain loops (default: "30s")
  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")`)
}

// logConfigWarnings reports configurations that work but degrade the
// service, so operators see the tradeoff at startup.
func logConfigWarnings(cfg config.Config) {
	if len(cfg.ImageAPIKeys) == 0 {
		log.Println("autocontentd: WARNING: IMAGE_API_KEYS not set; image search falls back to scraping (slower, less reliable)")
	}
	if cfg.DatabaseURL == "" {
		log.Println("autocontentd: WARNING: DATABASE_URL not set; generated content is not archived and is lost on restart")
	}
	if cfg.RedisAddr == "" {
		log.Println("autocontentd: REDIS_ADDR not set; analytics counters disabled")
	}
	if !cfg.MetricsEnabled {
		log.Println("autocontentd: METRICS_ENABLED not set; metrics disabled")
	}
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(cfg)

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("autocontentd: metrics enabled (path=%s)", cfg.MetricsPath)
	}

	// Credential pool. Scrape mode still flows through the pool so the
	// hourly ceiling bounds scrape volume too.
	keys := cfg.ImageAPIKeys
	if len(keys) == 0 {
		keys = []string{"scrape"}
	}
	pool := keypool.New(keys).WithLimits(cfg.KeyCeiling, cfg.KeyBuffer)
	if metricsSink != nil {
		pool = pool.WithMetrics(metricsSink)
	}

	// One breaker shared by both remote targets; the per-target state
	// lives inside.
	breaker := circuitbreaker.New(breakerThreshold, breakerCooldown)

	genClient := generation.NewClient(cfg.GeneratorURL, cfg.GeneratorName, cfg.GeneratorKey).
		WithBreaker(breaker)
	if metricsSink != nil {
		genClient = genClient.WithMetrics(metricsSink)
	}

	var searcher pipeline.ImageSearcher
	if len(cfg.ImageAPIKeys) > 0 {
		client := imagesearch.NewClient(cfg.ImageAPIURL, cfg.ImageRatePerSec).
			WithBreaker(breaker)
		if metricsSink != nil {
			client = client.WithMetrics(metricsSink)
		}
		searcher = client
		log.Printf("autocontentd: image search via API (%d credentials)", len(cfg.ImageAPIKeys))
	} else {
		searcher = imagesearch.NewScraper("", cfg.ImageRatePerSec)
		log.Println("autocontentd: image search via scraping")
	}

	pipe := pipeline.New(
		pipeline.Config{CallTimeout: cfg.CallTimeout},
		genClient, genClient, genClient,
		searcher,
		pool,
	)

	reg := registry.New(
		scheduler.Config{
			CapBackoff:       cfg.CapBackoff,
			RetryBackoff:     cfg.RetryBackoff,
			CheckGranularity: cfg.CheckGranularity,
		},
		pipe,
	).WithCronParser(cron.NewParser())
	if metricsSink != nil {
		reg = reg.WithMetrics(metricsSink)
	}

	apiHandler := api.NewHandler(reg)

	// Wire the PostgreSQL archive if configured
	var db *sql.DB
	var sweeper *retention.Sweeper
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
			return exitRuntimeError
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

		if err := db.Ping(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
			return exitRuntimeError
		}

		store := postgres.New(db, cfg.DBOpTimeout)
		if err := store.EnsureSchema(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "failed to ensure schema: %v\n", err)
			return exitRuntimeError
		}

		reg = reg.WithArchive(store)
		apiHandler = apiHandler.WithArchive(store).WithDatabaseChecker(db)
		log.Println("autocontentd: archive enabled (postgres)")

		if cfg.ArchiveRetention > 0 {
			sweeper = retention.New(retention.Config{MaxAge: cfg.ArchiveRetention}, store)
		}
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		defer redisClient.Close()

		analyticsSink := analytics.NewRedisSink(redisClient, cfg.AnalyticsRetention)
		reg = reg.WithAnalytics(analyticsSink)
		apiHandler = apiHandler.WithAnalytics(analyticsSink).WithCacheChecker(api.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
		log.Printf("autocontentd: analytics enabled (redis=%s)", cfg.RedisAddr)
	}

	// Load per-domain settings; they are started either directly or by
	// the leader election callback below.
	var domains map[string]appdomain.Settings
	if cfg.DomainsFile != "" {
		loaded, err := config.LoadDomains(cfg.DomainsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load domains file: %v\n", err)
			return exitInvalidConfig
		}
		domains = loaded
	}

	var electionCancel context.CancelFunc
	if cfg.LeaderElectionEnabled && db != nil {
		// Only the leader runs the schedulers; followers keep serving
		// the HTTP API against their (empty) registry.
		elector := leaderelection.New(
			db,
			leaderLockKey,
			leaderRetryInterval,
			leaderHeartbeatInterval,
			func(ctx context.Context) { startDomains(reg, domains) },
			func() {
				drainCtx, cancel := context.WithTimeout(context.Background(), cfg.SchedulerDrainTimeout)
				reg.StopAll(drainCtx)
				cancel()
			},
		)
		if metricsSink != nil {
			elector = elector.WithMetrics(metricsSink)
		}

		var electionCtx context.Context
		electionCtx, electionCancel = context.WithCancel(context.Background())
		go elector.Run(electionCtx)
		log.Println("autocontentd: leader election enabled")
	} else {
		if cfg.LeaderElectionEnabled {
			log.Println("autocontentd: WARNING: LEADER_ELECTION_ENABLED requires DATABASE_URL; running standalone")
		}
		startDomains(reg, domains)
	}

	// Start the archive retention sweeper if configured
	var sweepCancel context.CancelFunc
	if sweeper != nil {
		var sweepCtx context.Context
		sweepCtx, sweepCancel = context.WithCancel(context.Background())
		go sweeper.Run(sweepCtx)
		log.Printf("autocontentd: archive retention enabled (max_age=%s)", cfg.ArchiveRetention)
	}

	mux := http.NewServeMux()
	if metricsSink != nil {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}
	mux.Handle("/", apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("autocontentd: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("autocontentd: http server error: %v", err)
		}
	}()

	log.Printf("autocontentd: started (http=%s)", cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("autocontentd: received signal %v, shutting down", received)

	// Phase 0: Stop the election loop and the retention sweeper
	if electionCancel != nil {
		electionCancel()
	}
	if sweepCancel != nil {
		sweepCancel()
	}

	// Phase 1: Stop domain schedulers (no new content generated)
	log.Println("autocontentd: stopping domain schedulers...")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.SchedulerDrainTimeout)
	reg.StopAll(drainCtx)
	drainCancel()
	log.Println("autocontentd: domain schedulers stopped")

	// Phase 2: Stop HTTP server with graceful shutdown
	log.Println("autocontentd: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("autocontentd: http server shutdown error: %v", err)
	}
	log.Println("autocontentd: http server stopped")

	log.Println("autocontentd: stopped")
	return exitSuccess
}

// startDomains starts every enabled domain in name order. Already-active
// domains are left alone so repeated leader elections stay idempotent.
func startDomains(reg *registry.Registry, domains map[string]appdomain.Settings) {
	names := make([]string, 0, len(domains))
	for name := range domains {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		settings := domains[name]
		if !settings.Enabled {
			log.Printf("autocontentd: domain %s disabled, skipping", name)
			continue
		}
		if err := reg.StartFor(name, settings); err != nil {
			if errors.Is(err, registry.ErrAlreadyActive) {
				continue
			}
			log.Printf("autocontentd: failed to start domain %s: %v", name, err)
			continue
		}
		log.Printf("autocontentd: domain %s started", name)
	}
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("autocontentd version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
