// Package main runs an in-memory relay for local development.
//
// Everything is lost on restart. Point clients at it with
// RELAYLINK_RELAY_URL=http://localhost:8787.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/opd-ai/relaylink/relay/memrelay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type args struct {
	Listen    string        `arg:"-l,--listen" default:":8787" help:"address to listen on"`
	TTL       time.Duration `arg:"--ttl" default:"168h" help:"how long messages and requests are kept"`
	Rate      float64       `arg:"--rate" default:"20" help:"writes per second allowed per sender key; 0 disables"`
	Burst     int           `arg:"--burst" default:"40" help:"write burst per sender key"`
	Quota     int           `arg:"--mailbox-quota" default:"8388608" help:"ciphertext bytes one sender may queue for one recipient; 0 disables"`
	NoMetrics bool          `arg:"--no-metrics" help:"do not serve prometheus metrics on /metrics"`
	LogLevel  string        `arg:"--log-level,env:RELAYLINK_LOG_LEVEL" default:"info" help:"log level"`
	JSONLogs  bool          `arg:"--json-logs" help:"log as JSON"`
}

func (args) Description() string {
	return "memrelayd serves the relaylink relay contract from memory.\n"
}

func main() {
	var a args
	arg.MustParse(&a)

	level, err := logrus.ParseLevel(a.LogLevel)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid log level")
	}
	logrus.SetLevel(level)
	if a.JSONLogs {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	relay := memrelay.New(
		memrelay.WithTTL(a.TTL),
		memrelay.WithRateLimit(a.Rate, a.Burst),
		memrelay.WithMailboxQuota(a.Quota),
		memrelay.WithRegisterer(reg),
	)

	mux := http.NewServeMux()
	mux.Handle("/", relay)
	if !a.NoMetrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	srv := &http.Server{
		Addr:              a.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Shutdown")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"listen": a.Listen,
		"ttl":    a.TTL,
	}).Info("memrelayd listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logrus.WithError(err).Fatal("Serve")
	}
}
