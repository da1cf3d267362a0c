// Package config loads service settings from flags with environment fallbacks.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Mail transports.
const (
	TransportLog  = "log"
	TransportSMTP = "smtp"
)

// Metrics exporters.
const (
	MetricsNone   = "none"
	MetricsStdout = "stdout"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("config: invalid")

// SMTP holds submission server settings. They come from the environment only.
type SMTP struct {
	Addr     string
	From     string
	Username string
	Password string
}

// Config is the process configuration.
type Config struct {
	Addr            string
	StoreDriver     string
	StoreDSN        string
	DBName          string
	Table           string
	MaxRetries      int
	SendTimeout     time.Duration
	SendRate        float64
	SendBurst       int
	SingleFlight    bool
	SweepSchedule   string
	Transport       string
	SMTP            SMTP
	LogLevel        string
	LogFormat       string
	MetricsExporter string
	MetricsInterval time.Duration
	ShutdownTimeout time.Duration
}

// Load parses args (without the program name). Environment values from getenv
// become flag defaults, so an explicit flag always wins.
func Load(args []string, getenv func(string) string) (Config, error) {
	env := envReader{getenv: getenv}

	dsn := env.str("STORE_DSN", "")
	if dsn == "" {
		dsn = env.str("MONGO_URI", "")
	}

	var cfg Config
	fs := flag.NewFlagSet("mailqueue", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Addr, "addr", env.str("HTTP_ADDR", ":3002"), "HTTP listen address")
	fs.StringVar(&cfg.StoreDriver, "store", env.str("STORE_DRIVER", DriverMongo), "store driver: mongo, mysql, postgres or memory")
	fs.StringVar(&cfg.StoreDSN, "store-dsn", dsn, "store connection string")
	fs.StringVar(&cfg.DBName, "db-name", env.str("DB_NAME", "mailqueue"), "MongoDB database name")
	fs.StringVar(&cfg.Table, "table", env.str("QUEUE_TABLE", ""), "queue table or collection name")
	fs.IntVar(&cfg.MaxRetries, "max-retries", env.integer("MAX_RETRIES", 3), "delivery attempts per entry")
	fs.DurationVar(&cfg.SendTimeout, "send-timeout", env.dur("SEND_TIMEOUT", 30*time.Second), "per attempt send timeout (0 disables)")
	fs.Float64Var(&cfg.SendRate, "send-rate", env.number("SEND_RATE", 0), "max sends per second (0 is unlimited)")
	fs.IntVar(&cfg.SendBurst, "send-burst", env.integer("SEND_BURST", 1), "send rate burst")
	fs.BoolVar(&cfg.SingleFlight, "single-flight", env.boolean("SINGLE_FLIGHT", false), "run at most one background pass")
	fs.StringVar(&cfg.SweepSchedule, "sweep", env.str("SWEEP_SCHEDULE", "@every 1m"), "cron schedule for the eligibility sweep (empty disables)")
	fs.StringVar(&cfg.Transport, "transport", env.str("MAIL_TRANSPORT", TransportLog), "mail transport: log or smtp")
	fs.StringVar(&cfg.LogLevel, "log-level", env.str("LOG_LEVEL", "info"), "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", env.str("LOG_FORMAT", "text"), "log format: text or json")
	fs.StringVar(&cfg.MetricsExporter, "metrics", env.str("METRICS_EXPORTER", MetricsNone), "metrics exporter: none or stdout")
	fs.DurationVar(&cfg.MetricsInterval, "metrics-interval", env.dur("METRICS_INTERVAL", time.Minute), "metrics export interval")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", env.dur("SHUTDOWN_TIMEOUT", 15*time.Second), "graceful shutdown timeout")

	cfg.SMTP = SMTP{
		Addr:     env.str("SMTP_ADDR", ""),
		From:     env.str("SMTP_FROM", ""),
		Username: env.str("SMTP_USERNAME", ""),
		Password: env.str("SMTP_PASSWORD", ""),
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := errors.Join(env.errs...); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMongo, DriverMySQL, DriverPostgres:
		if c.StoreDSN == "" {
			errs = append(errs, fmt.Errorf("store dsn is required for %s", c.StoreDriver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.StoreDriver == DriverMongo && c.DBName == "" {
		errs = append(errs, errors.New("db name is required for mongo"))
	}
	if c.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("max retries must be positive, got %d", c.MaxRetries))
	}
	if c.SendTimeout < 0 {
		errs = append(errs, errors.New("send timeout must not be negative"))
	}
	if c.SendRate < 0 {
		errs = append(errs, errors.New("send rate must not be negative"))
	}
	if c.SendRate > 0 && c.SendBurst < 1 {
		errs = append(errs, errors.New("send burst must be at least 1"))
	}
	if c.SweepSchedule != "" {
		if _, err := ParseSchedule(c.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("sweep schedule: %w", err))
		}
	}
	switch c.Transport {
	case TransportLog:
	case TransportSMTP:
		if c.SMTP.Addr == "" || c.SMTP.From == "" {
			errs = append(errs, errors.New("SMTP_ADDR and SMTP_FROM are required for the smtp transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	switch c.MetricsExporter {
	case "", MetricsNone:
	case MetricsStdout:
		if c.MetricsInterval <= 0 {
			errs = append(errs, errors.New("metrics interval must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown metrics exporter %q", c.MetricsExporter))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// ParseSchedule parses a standard five-field cron expression or a descriptor such as "@every 1m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	return parser.Parse(expr)
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) str(name, fallback string) string {
	if v := strings.TrimSpace(e.getenv(name)); v != "" {
		return v
	}

	return fallback
}

func (e *envReader) integer(name string, fallback int) int {
	raw := strings.TrimSpace(e.getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", name, err))

		return fallback
	}

	return v
}

func (e *envReader) number(name string, fallback float64) float64 {
	raw := strings.TrimSpace(e.getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", name, err))

		return fallback
	}

	return v
}

func (e *envReader) dur(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(e.getenv(name))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", name, err))

		return fallback
	}

	return v
}

func (e *envReader) boolean(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(e.getenv(name)))
	switch raw {
	case "":
		return fallback
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", name, raw))

		return fallback
	}
}
