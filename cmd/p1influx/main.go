// The p1influx command polls a HomeWizard P1 meter and writes
// its readings to InfluxDB.
//
// It is configured entirely through environment variables:
//
//	INFLUXDB_HOSTNAME  host name of the InfluxDB server (required)
//	INFLUXDB_TOKEN     InfluxDB API token (required)
//	INFLUXDB_ORG       InfluxDB organization (required)
//	P1METER_HOSTNAME   host name of the P1 meter (required)
//	INFLUXDB_PORT      InfluxDB port (default 8086)
//	INFLUXDB_BUCKET    InfluxDB bucket (default p1)
//	ENABLE_LOGGING     print each reading to stdout (default false)
//	ENABLE_INFLUXDB    write readings to InfluxDB (default true)
//	P1METER_TIMEOUT    timeout for meter requests (default 5s)
//	INFLUXDB_TIMEOUT   timeout for InfluxDB writes (default 10s)
//	METRICS_ADDR       address to serve /metrics and /status on (default none)
//	NTP_HOST           NTP server used to timestamp readings (default none)
//	LOG_CONFIG         loggo logging configuration (default <root>=INFO)
//
// ENABLE_LOGGING and ENABLE_INFLUXDB accept the values understood by
// strconv.ParseBool: 1, t, T, true, True, TRUE and the matching false forms.
// Any other value, such as "yes", is reported as a configuration error
// and the command exits with status 1 rather than treating it as false.
//
// The command exits with status 1 when the configuration is invalid
// or the meter's protocol generation cannot be determined at startup.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/loggo"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rogpeppe/p1influx/cadence"
	"github.com/rogpeppe/p1influx/influxsink"
	"github.com/rogpeppe/p1influx/logsink"
	"github.com/rogpeppe/p1influx/ntpclock"
	"github.com/rogpeppe/p1influx/p1config"
	"github.com/rogpeppe/p1influx/p1server"
	"github.com/rogpeppe/p1influx/sampleworker"
)

var logger = loggo.GetLogger("p1influx")

func main() {
	os.Exit(main1())
}

// main1 runs the program and returns its exit code.
// All resources are released by the time it returns.
func main1() int {
	cfg, err := p1config.FromEnv()
	if err != nil {
		logger.Errorf("cannot load configuration: %v", err)
		return 1
	}
	if err := loggo.ConfigureLoggers(cfg.LogConfig); err != nil {
		logger.Errorf("invalid logging configuration: %v", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	plan, err := cadence.Classify(ctx, cfg.MeterAddr)
	cancel()
	if err != nil {
		logger.Errorf("cannot read p1 meter %s: %v", cfg.MeterAddr, err)
		return 1
	}

	now := time.Now
	if cfg.NTPHost != "" {
		clock, err := ntpclock.New(ntpclock.Params{
			Host: cfg.NTPHost,
		})
		if err != nil {
			logger.Warningf("using system clock: %v", err)
		} else {
			defer clock.Close()
			now = clock.Now
		}
	}

	var sinks sampleworker.MultiSink
	if cfg.EnableLogging {
		sinks = append(sinks, logsink.New(os.Stdout))
	}
	if cfg.EnableInflux {
		isink, err := influxsink.New(influxsink.Params{
			URL:    cfg.InfluxURL(),
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
			Now:    now,
		})
		if err != nil {
			logger.Errorf("cannot create InfluxDB sink: %v", err)
			return 1
		}
		defer isink.Close()
		sinks = append(sinks, isink)
	}
	if len(sinks) == 0 {
		logger.Warningf("both console logging and InfluxDB are disabled; readings will be discarded")
	}

	reg := prometheus.NewRegistry()
	w, err := sampleworker.New(sampleworker.Params{
		MeterAddr:    cfg.MeterAddr,
		Plan:         plan,
		Sink:         sinks,
		FetchTimeout: cfg.FetchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Now:          now,
		Registerer:   reg,
	})
	if err != nil {
		logger.Errorf("cannot start sample worker: %v", err)
		return 1
	}
	defer w.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr: cfg.MetricsAddr,
			Handler: p1server.New(p1server.Params{
				Gatherer: reg,
				Plan:     plan,
				Status:   w.Status,
			}),
		}
		go func() {
			logger.Infof("serving metrics on %s", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server failed: %v", err)
			}
		}()
		defer srv.Close()
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	sig := <-sigc
	logger.Infof("received %v; shutting down", sig)
	return 0
}
