// Package kafka consumes the detection pipeline's alert firehose, the
// ingest path for deployments where the dashboard socket is not the
// source of truth. Messages feed the same notification queue as socket
// alerts, so dedup covers both paths.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	kafkago "github.com/segmentio/kafka-go"

	"alert-console/internal/logging"
	"alert-console/internal/models"
)

type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// Notifier receives decoded alert events; the presenter satisfies it.
type Notifier interface {
	Notify(models.AlertEvent)
}

type Consumer struct {
	reader *kafkago.Reader
	sink   Notifier
	logger *logging.Logger
}

func NewConsumer(cfg Config, sink Notifier, logger *logging.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{cfg.Broker},
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
	})
	return &Consumer{reader: reader, sink: sink, logger: logger}
}

func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started (topic=%s)", c.reader.Config().Topic)
		for {
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				continue
			}

			var alert models.AlertEvent
			if err := json.Unmarshal(msg.Value, &alert); err != nil {
				c.logger.Errorf("Unmarshal message failed: %v", err)
				continue
			}
			if alert.ID == "" || alert.CameraID == "" {
				c.logger.Errorf("Invalid message: missing id or camera_id")
				continue
			}
			alert.DeriveSeverity()
			c.sink.Notify(alert)
			c.logger.Debugf("Processed alert %s from Kafka", alert.ID)
		}
	}()
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Close Kafka reader failed: %v", err)
	}
}
