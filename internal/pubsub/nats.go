package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL           string
	SubjectPrefix string // Default: "ledger"
	Name          string // client name, Default: "market-ledger"
}

// NATSPublisher publishes JSON events on a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to NATS. The connection retries in the background
// if the server is not reachable yet.
func NewNATSPublisher(cfg NATSConfig, logger *zap.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "ledger"
	}
	if cfg.Name == "" {
		cfg.Name = "market-ledger"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("pubsub")

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(5*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	logger.Info("connected to nats", zap.String("url", cfg.URL), zap.String("prefix", cfg.SubjectPrefix))
	return &NATSPublisher{nc: nc, prefix: cfg.SubjectPrefix, logger: logger}, nil
}

// Subject returns the full subject for a suffix.
func (p *NATSPublisher) Subject(suffix string) string {
	return p.prefix + "." + suffix
}

// PublishTradeRecorded publishes on <prefix>.trades.recorded.
func (p *NATSPublisher) PublishTradeRecorded(ctx context.Context, msg TradeRecorded) {
	p.publish(p.Subject(SubjectTradesRecorded), msg)
}

// PublishPositionSynced publishes on <prefix>.positions.synced.
func (p *NATSPublisher) PublishPositionSynced(ctx context.Context, msg PositionSynced) {
	p.publish(p.Subject(SubjectPositionsSynced), msg)
}

func (p *NATSPublisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("encode event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// Ready reports whether the connection is up.
func (p *NATSPublisher) Ready() bool {
	return p.nc != nil && p.nc.Status() == nats.CONNECTED
}

// Close drains pending publishes and closes the connection. Safe to call twice.
func (p *NATSPublisher) Close() error {
	if p.nc == nil || p.nc.IsClosed() || p.nc.IsDraining() {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
