package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RoanBrand/mqttmsgr"
	"github.com/RoanBrand/mqttmsgr/config"
	"github.com/RoanBrand/mqttmsgr/events"
	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type program struct {
	configFlag string
	execDir    string

	client  *mqttmsgr.Client
	metrics *http.Server
	cancel  context.CancelFunc
}

func (p *program) loadConfig() (*config.Config, error) {
	path := p.configFlag
	if path == "" {
		toTry := filepath.Join(p.execDir, "config.json")
		if !fileExists(toTry) {
			return nil, errors.New("no config file specified or found at " + toTry)
		}
		path = toTry
	}

	cfg := config.New()
	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	log.Infoln("Using config file:", path)
	return cfg, nil
}

func (p *program) Start(s service.Service) error {
	cfg, err := p.loadConfig()
	if err != nil {
		return err
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}

	sessionFile := cfg.SessionFile
	if sessionFile == "" {
		sessionFile = filepath.Join(p.execDir, "session.json")
	}
	sess, err := mqttmsgr.LoadSession(sessionFile)
	if err != nil {
		return err
	}

	p.client, err = mqttmsgr.New(cfg, mqttmsgr.WithRegisterer(prometheus.DefaultRegisterer))
	if err != nil {
		return err
	}
	p.client.AddListener(logListener())

	if cfg.Metrics.Address != "" {
		p.serveMetrics(cfg.Metrics.Address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		// Failures are retried in the background and reported to the listener.
		if err := p.client.Connect(ctx, sess); err != nil && !errors.Is(err, context.Canceled) {
			log.WithField("err", err).Warn("Initial connect failed")
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p.metrics.Shutdown(ctx)
	}
	if p.client != nil {
		return p.client.Disconnect()
	}
	return nil
}

func (p *program) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	p.metrics = &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Infoln("Serving metrics on", addr)
		if err := p.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("err", err).Error("Metrics server stopped")
		}
	}()
}

func setupLogging(cfg *config.Config) error {
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		log.SetOutput(f)
	}
	if cfg.Log.Level != "" {
		switch strings.ToLower(cfg.Log.Level) {
		case "error":
			log.SetLevel(log.ErrorLevel)
		case "warn":
			log.SetLevel(log.WarnLevel)
		case "info":
			log.SetLevel(log.InfoLevel)
		case "debug":
			log.SetLevel(log.DebugLevel)
		default:
			return errors.New("unknown log level: " + cfg.Log.Level)
		}
	}

	return nil
}

func logListener() mqttmsgr.ListenerFuncs {
	return mqttmsgr.ListenerFuncs{
		Connect: func() {
			log.Info("Session connected")
		},
		Disconnect: func(info mqttmsgr.DisconnectInfo) {
			l := log.WithField("willRetry", info.WillRetry)
			if info.WillRetry {
				l = l.WithField("retryIn", info.RetryIn)
			}
			if info.Err != nil {
				l = l.WithField("err", info.Err)
			}
			l.Warn("Session disconnected")
		},
		Error: func(err error) {
			if errors.Is(err, mqttmsgr.ErrReauthRequired) {
				log.WithField("err", err).Error("Session rejected. Refresh the session file and restart")
				return
			}
			log.WithField("err", err).Error("Client error")
		},
		Event: func(ev events.Event) {
			log.WithFields(log.Fields{
				"kind":  ev.Kind().String(),
				"event": ev,
			}).Info("Event")
		},
	}
}
