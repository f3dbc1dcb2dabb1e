package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/halvard-dev/storefront/internal/api"
	"github.com/halvard-dev/storefront/internal/apkstore"
	"github.com/halvard-dev/storefront/internal/auth"
	"github.com/halvard-dev/storefront/internal/cfg"
	"github.com/halvard-dev/storefront/internal/health"
	"github.com/halvard-dev/storefront/internal/httpmw"
	"github.com/halvard-dev/storefront/internal/httpserver"
	"github.com/halvard-dev/storefront/internal/log"
	"github.com/halvard-dev/storefront/internal/metrics"
	"github.com/halvard-dev/storefront/internal/opshttp"
	"github.com/halvard-dev/storefront/internal/otelx"
	"github.com/halvard-dev/storefront/internal/prof"
	"github.com/halvard-dev/storefront/internal/ratelimit"
	"github.com/halvard-dev/storefront/internal/store"
	v "github.com/halvard-dev/storefront/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix STOREFRONT_ and validate
	cfg.FillFromEnv(flag.CommandLine, "STOREFRONT_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	// validate config
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           v.Version,
		Commit:            v.Commit,
		BuildId:           v.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"commit_date", vi.CommitDate,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"env", conf.Env,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"db_path", conf.DBPath,
		"static_dir", conf.StaticDir,
		"rate_limit_window", conf.RateLimitWindow,
		"rate_limit_max", conf.RateLimitMax,
		"cors_origins", conf.CORSOrigins,
		"disable_csp", conf.DisableCSP,
		"trusted_hops", conf.TrustedHops,
		"apk_dir", conf.APKDir,
		"apk_s3_bucket", conf.APKS3Bucket,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		AuthToken:     "",
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Setup metrics / admin listener
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetProfilingActive(conf.EnablePyroscope)

	// Open storage before accepting any connections. A failed open or
	// migration blocks startup entirely.
	st, err := store.Open(ctx, conf.DBPath)
	if err != nil {
		L.Error(ctx, err, "failed to open store", "db_path", conf.DBPath)
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()
	L.Info(ctx, "store opened and migrated", "db_path", conf.DBPath)

	tokens, err := auth.NewTokenIssuer(conf.JWTSecret, v.AppName, conf.JWTTTL)
	if err != nil {
		L.Error(ctx, err, "failed to create token issuer")
		os.Exit(1)
	}

	// APK artifact source: local directory, optionally fronted by S3
	apkOpts := apkstore.Options{
		Logger:   L,
		Dir:      conf.APKDir,
		S3Bucket: conf.APKS3Bucket,
		S3Prefix: conf.APKS3Prefix,
	}
	if conf.APKS3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config, apk downloads limited to local directory")
		} else {
			apkOpts.AWSConfig = &awsCfg
		}
	}
	apkStore, err := apkstore.New(ctx, apkOpts)
	if err != nil {
		L.Warn(ctx, "apk store unavailable, /api/apk endpoints will report 404", "error", err)
		apkStore = nil
	}

	// stricter token-bucket throttle for the credential endpoints
	authLimiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.AuthPerSecond, conf.AuthBurst),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "auth throttle triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "auth throttle at capacity, rejecting new visitors until some are evicted")
		}),
	)

	apiHandlers, err := api.New(api.Options{
		Logger:       L,
		Store:        st,
		Tokens:       tokens,
		APK:          apkStore,
		AuthLimiter:  authLimiter,
		Metrics:      m,
		ExposeErrors: !conf.IsProduction(),
	})
	if err != nil {
		L.Error(ctx, err, "failed to build api")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// readiness requires the shutdown gate open and the database reachable
	readiness := health.All(
		gate.Probe(),
		health.CheckFunc(st.Ping),
	)

	// global fixed-window limiter, one budget per client identity
	limiter := ratelimit.NewWindow(ctx,
		ratelimit.WithWindow(conf.RateLimitWindow),
		ratelimit.WithMax(conf.RateLimitMax),
		ratelimit.WithWindowOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		ratelimit.WithWindowOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithWindowOnCapacity(func() {
			m.IncRateLimitCapacity()
			L.Warn(ctx, "rate limit entry capacity reached, evicting stalest windows")
		}),
	)

	staticFS := os.DirFS(conf.StaticDir)
	if _, err := os.Stat(conf.StaticDir); err != nil {
		L.Warn(ctx, "static dir missing, serving embedded pages only", "static_dir", conf.StaticDir)
		staticFS = nil
	}

	// start public http server
	siteHTTPStop, err := httpserver.Start(
		ctx,
		&httpserver.Options{
			Logger:       L,
			Port:         conf.HTTPPort,
			UseRecoverMW: true,
			OnPanic:      m.IncHttpPanic,
			ExposeErrors: !conf.IsProduction(),
			SecurityHeaders: httpmw.SecurityHeaderOptions{
				DisableCSP: conf.DisableCSP,
			},
			ClientIPOpts: httpmw.ClientIPOptions{
				TrustedHops: conf.TrustedHops,
			},
			RateLimitMW:  limiter.Middleware,
			MetricsMW:    m.Middleware,
			CORSOrigins:  conf.Origins(),
			MaxBodyBytes: conf.MaxBodyBytes,
			StaticFS:     staticFS,
			APIRoutes:    apiHandlers.RegisterRoutes,
			Health:       health.Fixed(true, ""),
			Readiness:    readiness,
		},
	)
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks, pprof
	// sg restricts inbound to internal monitoring infrastructure
	// we also reject connections from public ips in middleware to prevent
	// accidental exposure if sg is misconfigured
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// block until signal so we dont exit
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// wait for ctrl+c / sigterm
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail health checks to drain connections
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	// allow in-flight requests to finish and load balancers to observe
	// the failing readiness probe before we stop accepting
	L.Info(context.Background(), "sleeping 60s for in-flight and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(60 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
