package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"alert-console/internal/ack"
	"alert-console/internal/alerts"
	"alert-console/internal/api"
	"alert-console/internal/config"
	"alert-console/internal/kafka"
	"alert-console/internal/logging"
	"alert-console/internal/models"
	"alert-console/internal/providers"
	"alert-console/internal/sound"
	"alert-console/internal/store"
	"alert-console/internal/stream"
	"alert-console/internal/transport"
)

const hookTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		logger.Errorf("Failed to open local store: %v", err)
		log.Fatalf("Local store failed: %v", err)
	}
	defer st.Close()

	clientID := loadClientID(ctx, st, logger)

	settings, err := sound.LoadSettings(ctx, st)
	if err != nil {
		logger.Warnf("Failed to load sound settings, using defaults: %v", err)
		settings = sound.DefaultSettings()
	}
	snd := buildSound(cfg, settings, st, logger)

	queue := alerts.NewIngestQueue(cfg.Alerts.MaxQueueSize, cfg.Alerts.DedupCacheCap, nil, logger)
	queue.StartSweep(cfg.Alerts.DedupSweep)
	defer queue.StopSweep()

	acker := ack.NewClient(cfg.Backend.RESTBaseURL, logger)

	var escalator *providers.TelegramEscalator
	if cfg.Telegram.BotToken != "" {
		escalator, err = providers.NewTelegramEscalator(providers.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
		}, logger)
		if err != nil {
			logger.Warnf("Telegram escalation disabled: %v", err)
		}
	}

	hooks := buildHooks(ctx, acker, escalator, clientID, logger)

	presenter := alerts.NewPresenter(queue, snd, hooks, cfg.Alerts.AutoClose, nil, logger)
	defer presenter.Close()

	events := transport.NewRouter(logger)
	events.OnAlert(presenter.Notify)
	events.OnCameraStatus(func(cs models.CameraStatus) {
		logger.Infof("Camera %s is %s", cs.CameraID, cs.Status)
	})
	events.OnStats(func(raw json.RawMessage) {
		logger.Debugf("Backend stats: %s", raw)
	})
	events.OnStatus(func(s models.StatusSnapshot) {
		logger.Debugf("System status: %s, %d cameras online", s.SystemStatus, s.CamerasOnline)
	})

	streams := stream.NewManager(stream.Config{
		URL:        cfg.Backend.WebSocketURL,
		MaxRetries: cfg.Stream.MaxRetries,
		BaseDelay:  cfg.Stream.BaseDelay,
		MaxDelay:   cfg.Stream.MaxDelay,
	}, logger)
	defer streams.Close()

	conn := transport.NewClient(transport.Config{
		URL:               cfg.Backend.WebSocketURL,
		ClientID:          clientID,
		HeartbeatInterval: cfg.Transport.HeartbeatInterval,
		MaxReconnects:     cfg.Transport.MaxReconnects,
		SendQueueCap:      cfg.Transport.SendQueueSize,
		OnStatus: func(s transport.Status) {
			logger.Infof("Connection status: %s", s)
		},
	}, events, logger)
	if err := conn.Connect(); err != nil {
		logger.Errorf("Initial connect failed, retrying in background: %v", err)
	}
	conn.Subscribe(transport.ChannelAlerts)
	defer conn.Disconnect()

	var wg sync.WaitGroup
	if cfg.Kafka.Broker != "" {
		consumer := kafka.NewConsumer(kafka.Config{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, presenter, logger)
		consumer.Start(ctx, &wg)
		defer consumer.Close()
	}

	srv := &http.Server{
		Addr:    cfg.API.Port,
		Handler: api.NewRouter(presenter, snd, conn, streams, logger),
	}
	go func() {
		<-ctx.Done()
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Errorf("API shutdown failed: %v", err)
		}
	}()

	logger.Infof("Starting console API on %s (client_id=%s)", cfg.API.Port, clientID)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("API server failed: %v", err)
	}
	wg.Wait()
}

// buildHooks wires the presenter's triage callbacks to the backend.
// Each trigger reports its decision asynchronously so the dismiss flow
// never blocks on the network: confirm resolves the alert (and
// escalates critical threats), false-alarm flags it, and opening the
// detail view records a pending review under this console's id.
func buildHooks(ctx context.Context, acker *ack.Client, escalator *providers.TelegramEscalator, clientID string, logger *logging.Logger) alerts.Hooks {
	return alerts.Hooks{
		Acknowledge: func(a models.AlertEvent) {
			logger.Infof("Alert %s acknowledged", a.ID)
		},
		Confirm: func(a models.AlertEvent) {
			go func() {
				hctx, hcancel := context.WithTimeout(ctx, hookTimeout)
				defer hcancel()
				if err := acker.Resolve(hctx, a.ID); err != nil {
					logger.Errorf("Resolve alert %s failed: %v", a.ID, err)
				}
				if escalator != nil && a.Severity == models.SeverityCritical {
					if err := escalator.EscalateConfirmed(hctx, a); err != nil {
						logger.Errorf("Escalate alert %s failed: %v", a.ID, err)
					}
				}
			}()
		},
		MarkFalse: func(a models.AlertEvent) {
			go func() {
				hctx, hcancel := context.WithTimeout(ctx, hookTimeout)
				defer hcancel()
				if err := acker.MarkFalsePositive(hctx, a.ID); err != nil {
					logger.Errorf("Mark alert %s false positive failed: %v", a.ID, err)
				}
			}()
		},
		ViewDetails: func(a models.AlertEvent) {
			go func() {
				hctx, hcancel := context.WithTimeout(ctx, hookTimeout)
				defer hcancel()
				if err := acker.Review(hctx, a.ID, "under_review", "Opened in detail view", clientID); err != nil {
					logger.Errorf("Record review of alert %s failed: %v", a.ID, err)
				}
			}()
		},
	}
}

// loadClientID returns the persisted client id, minting one on first run
// so the server can reassociate session state across restarts.
func loadClientID(ctx context.Context, st *store.Store, logger *logging.Logger) string {
	if id, err := st.Get(ctx, "client.id"); err == nil {
		return id
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Warnf("Failed to read client id: %v", err)
	}
	id := uuid.New().String()
	if err := st.Put(ctx, "client.id", id); err != nil {
		logger.Warnf("Failed to persist client id: %v", err)
	}
	return id
}

// buildSound wires the decoded-asset strategy when assets are
// configured, with the synthesized tone as fallback. Audio failures
// leave the console silent but functional.
func buildSound(cfg config.Config, settings sound.Settings, st *store.Store, logger *logging.Logger) *sound.Controller {
	var primary sound.Strategy
	if cfg.Sound.AssetDir != "" {
		s, err := sound.NewAssetStrategy(cfg.Sound.AssetDir)
		if err != nil {
			logger.Warnf("Sound assets unavailable, falling back to tone: %v", err)
		} else {
			primary = s
		}
	}
	var fallback sound.Strategy
	tone, err := sound.NewToneStrategy(settings.Tone)
	if err != nil {
		logger.Warnf("Tone synthesis unavailable, alerts will be silent: %v", err)
	} else {
		fallback = tone
	}
	return sound.NewController(settings, primary, fallback, st, logger)
}
