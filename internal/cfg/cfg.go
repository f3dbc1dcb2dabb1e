package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/halvard-dev/storefront/internal/log"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type App struct {
	Env      string
	LogJSON  bool
	LogLevel string

	HTTPPort  int
	AdminPort int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	StaticDir string
	DBPath    string

	JWTSecret string
	JWTTTL    time.Duration

	// CORSOrigins is a comma-separated allow-list of exact origins. Matching
	// is exact string comparison, no wildcards.
	CORSOrigins string

	// DisableCSP turns off the Content-Security-Policy response header.
	// Every other security header is still emitted. This is a deliberate
	// relaxation for pages that load inline scripts; callers must not assume
	// CSP protection is active when it is set.
	DisableCSP bool

	TrustedHops int

	RateLimitWindow time.Duration
	RateLimitMax    int
	AuthPerSecond   float64
	AuthBurst       int
	MaxBodyBytes    int64

	APKDir      string
	APKS3Bucket string
	APKS3Prefix string
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.StringVar(&c.Env, "env", EnvDevelopment, "development|production (controls 500 detail verbosity)")
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 3000, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9300, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.StringVar(&c.StaticDir, "static-dir", "public", "root directory for static assets and page documents")
	fs.StringVar(&c.DBPath, "db-path", "storefront.db", "path to the sqlite database file")
	fs.StringVar(&c.JWTSecret, "jwt-secret", "", "HMAC signing secret for API tokens (required)")
	fs.DurationVar(&c.JWTTTL, "jwt-ttl", 24*time.Hour, "API token lifetime")
	fs.StringVar(&c.CORSOrigins, "cors-origins", "http://localhost:3000,http://localhost:8081,https://app.storefront.dev", "comma-separated exact origins allowed for credentialed CORS")
	fs.BoolVar(&c.DisableCSP, "disable-csp", false, "disable the Content-Security-Policy header (documented relaxation)")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted reverse proxies for X-Forwarded-For resolution")
	fs.DurationVar(&c.RateLimitWindow, "rate-limit-window", 15*time.Minute, "per-client rate limit window")
	fs.IntVar(&c.RateLimitMax, "rate-limit-max", 100, "max requests per client per window")
	fs.Float64Var(&c.AuthPerSecond, "auth-per-second", 1, "token refill rate for the login/register throttle")
	fs.IntVar(&c.AuthBurst, "auth-burst", 10, "burst size for the login/register throttle")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 10<<20, "request body size ceiling in bytes")
	fs.StringVar(&c.APKDir, "apk-dir", "apk", "local directory holding launcher APK artifacts")
	fs.StringVar(&c.APKS3Bucket, "apk-s3-bucket", "", "optional S3 bucket to source APK artifacts from")
	fs.StringVar(&c.APKS3Prefix, "apk-s3-prefix", "", "S3 key prefix for APK artifacts")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// IsProduction reports whether error responses should hide internal detail.
func (c App) IsProduction() bool { return c.Env == EnvProduction }

// Origins returns the parsed CORS allow-list, empty entries removed.
func (c App) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.Env != EnvDevelopment && c.Env != EnvProduction {
		errs = append(errs, fmt.Errorf("invalid ENV %q (must be development|production)", c.Env))
	}

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	if c.EnableTracing && c.OTLPEndpoint == "" {
		errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
	}

	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	if c.StaticDir == "" {
		errs = append(errs, fmt.Errorf("STATIC_DIR is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("DB_PATH is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required"))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, fmt.Errorf("JWT_TTL must be positive (got %v)", c.JWTTTL))
	}

	// Every allow-listed origin must be scheme://host; exact-match CORS on a
	// malformed entry can never match a browser Origin header.
	for _, o := range c.Origins() {
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" || u.Path != "" {
			errs = append(errs, fmt.Errorf("invalid CORS origin %q (must be scheme://host[:port])", o))
		}
	}

	if c.TrustedHops < 0 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be >= 0 (got %d)", c.TrustedHops))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW must be positive (got %v)", c.RateLimitWindow))
	}
	if c.RateLimitMax < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX must be >= 1 (got %d)", c.RateLimitMax))
	}
	if c.AuthPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("AUTH_PER_SECOND must be positive (got %v)", c.AuthPerSecond))
	}
	if c.AuthBurst < 1 {
		errs = append(errs, fmt.Errorf("AUTH_BURST must be >= 1 (got %d)", c.AuthBurst))
	}
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be >= 1 (got %d)", c.MaxBodyBytes))
	}

	if c.APKS3Bucket != "" && c.APKS3Prefix == "" {
		errs = append(errs, fmt.Errorf("APK_S3_PREFIX is required when APK_S3_BUCKET is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
