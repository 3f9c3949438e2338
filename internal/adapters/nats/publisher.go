package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/servezone/internal/core/domain"
)

// Event subjects.
const (
	SubjectResolutionPrefix = "geo.resolution."
	SubjectZoneAudit        = "geo.zones.audit"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	streams := []nats.StreamConfig{
		{
			Name:      "GEO_RESOLUTIONS",
			Subjects:  []string{SubjectResolutionPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "GEO_ZONE_AUDITS",
			Subjects:  []string{SubjectZoneAudit},
			Retention: nats.LimitsPolicy,
			MaxAge:    30 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist; try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// ResolutionSubject is the subject a resolution outcome is published on.
func ResolutionSubject(ev *domain.ResolutionEvent) string {
	switch {
	case ev.ErrorKind != "":
		return SubjectResolutionPrefix + "failed." + string(ev.ErrorKind)
	case ev.Matched:
		return SubjectResolutionPrefix + "matched." + token(ev.ZoneID)
	}
	return SubjectResolutionPrefix + "unmatched"
}

func (p *Publisher) PublishResolution(ctx context.Context, ev *domain.ResolutionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(ResolutionSubject(ev), data, nats.Context(ctx), nats.MsgId(ev.ID))
	return err
}

func (p *Publisher) PublishZoneAudit(ctx context.Context, report *domain.ZoneAuditReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectZoneAudit, data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection for request/reply use.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for request/reply and subscriptions.
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
