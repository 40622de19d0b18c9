// Package p1config reads the p1influx configuration from the environment.
package p1config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/errgo.v1"
)

// Config holds the configuration for p1influx.
// It is read once at startup and not changed afterwards.
type Config struct {
	// MeterAddr holds the host name or address of the P1 meter.
	MeterAddr string

	InfluxHost   string
	InfluxPort   int
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// EnableLogging causes each reading to be printed to stdout.
	EnableLogging bool
	// EnableInflux causes readings to be written to InfluxDB.
	EnableInflux bool

	// FetchTimeout bounds each request to the meter.
	FetchTimeout time.Duration
	// WriteTimeout bounds each write to InfluxDB.
	WriteTimeout time.Duration

	// MetricsAddr holds the address to serve metrics on.
	// If it's empty, no metrics are served.
	MetricsAddr string
	// NTPHost holds the NTP server used to timestamp readings.
	// If it's empty, the system clock is used.
	NTPHost string
	// LogConfig holds the logging configuration in
	// loggo.ConfigureLoggers format.
	LogConfig string
}

// InfluxURL returns the URL of the InfluxDB server.
func (cfg *Config) InfluxURL() string {
	return fmt.Sprintf("http://%s:%d", cfg.InfluxHost, cfg.InfluxPort)
}

// Environment variable names.
const (
	EnvMeterAddr     = "P1METER_HOSTNAME"
	EnvInfluxHost    = "INFLUXDB_HOSTNAME"
	EnvInfluxPort    = "INFLUXDB_PORT"
	EnvInfluxToken   = "INFLUXDB_TOKEN"
	EnvInfluxOrg     = "INFLUXDB_ORG"
	EnvInfluxBucket  = "INFLUXDB_BUCKET"
	EnvEnableLogging = "ENABLE_LOGGING"
	EnvEnableInflux  = "ENABLE_INFLUXDB"
	EnvFetchTimeout  = "P1METER_TIMEOUT"
	EnvWriteTimeout  = "INFLUXDB_TIMEOUT"
	EnvMetricsAddr   = "METRICS_ADDR"
	EnvNTPHost       = "NTP_HOST"
	EnvLogConfig     = "LOG_CONFIG"
)

var required = []string{
	EnvInfluxHost,
	EnvInfluxToken,
	EnvInfluxOrg,
	EnvMeterAddr,
}

var defaults = map[string]string{
	EnvInfluxPort:    "8086",
	EnvInfluxBucket:  "p1",
	EnvEnableLogging: "false",
	EnvEnableInflux:  "true",
	EnvFetchTimeout:  "5s",
	EnvWriteTimeout:  "10s",
	EnvLogConfig:     "<root>=INFO",
}

// FromEnv reads the configuration from environment variables.
func FromEnv() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	var missing []string
	for _, key := range required {
		if v.GetString(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, errgo.Newf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	p := parser{v: v}
	cfg := &Config{
		MeterAddr:     v.GetString(EnvMeterAddr),
		InfluxHost:    v.GetString(EnvInfluxHost),
		InfluxPort:    p.port(EnvInfluxPort),
		InfluxToken:   v.GetString(EnvInfluxToken),
		InfluxOrg:     v.GetString(EnvInfluxOrg),
		InfluxBucket:  v.GetString(EnvInfluxBucket),
		EnableLogging: p.bool(EnvEnableLogging),
		EnableInflux:  p.bool(EnvEnableInflux),
		FetchTimeout:  p.duration(EnvFetchTimeout),
		WriteTimeout:  p.duration(EnvWriteTimeout),
		MetricsAddr:   v.GetString(EnvMetricsAddr),
		NTPHost:       v.GetString(EnvNTPHost),
		LogConfig:     v.GetString(EnvLogConfig),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// parser parses configuration values, remembering
// the first error encountered.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) bool(key string) bool {
	s := p.v.GetString(key)
	b, err := strconv.ParseBool(s)
	if err != nil {
		p.setError(key, s, "boolean")
	}
	return b
}

func (p *parser) port(key string) int {
	s := p.v.GetString(key)
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		p.setError(key, s, "port number")
	}
	return n
}

func (p *parser) duration(key string) time.Duration {
	s := p.v.GetString(key)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		p.setError(key, s, "duration")
	}
	return d
}

func (p *parser) setError(key, val, what string) {
	if p.err == nil {
		p.err = errgo.Newf("invalid %s %q in %s", what, val, key)
	}
}
