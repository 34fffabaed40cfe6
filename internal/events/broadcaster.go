// Package events publishes committed record changes to NATS subscribers.
package events

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
	"github.com/Annany2002/nebula-dataapi/internal/logger"
	"github.com/Annany2002/nebula-dataapi/internal/webhook"
)

var (
	customLog = logger.NewLogger()
	json      = jsoniter.ConfigCompatibleWithStandardLibrary
)

// SubjectPrefix is the root of every change subject.
const SubjectPrefix = "nebula.data"

// Publisher sends a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Change is the message body published for a record change.
type Change struct {
	Event string         `json:"event"`
	Table string         `json:"table"`
	Data  map[string]any `json:"data"`
}

// Broadcaster publishes record changes. The zero value and a nil *Broadcaster do nothing.
type Broadcaster struct {
	pub      Publisher
	conn     *nats.Conn
	redactor *webhook.Redactor
}

// New wraps pub. A nil pub yields a broadcaster that drops every change.
func New(pub Publisher) *Broadcaster {
	return &Broadcaster{pub: pub, redactor: webhook.NewRedactor()}
}

// Nop returns a broadcaster that publishes nothing.
func Nop() *Broadcaster {
	return New(nil)
}

// Connect dials NATS at url. An empty url returns Nop.
func Connect(url string) (*Broadcaster, error) {
	if url == "" {
		customLog.Println("Events: NATS_URL not set, change broadcasting disabled")
		return Nop(), nil
	}

	conn, err := nats.Connect(url,
		nats.Name("nebula-dataapi"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				customLog.Warnf("Events: Disconnected from NATS: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			customLog.Printf("Events: Reconnected to NATS at %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	customLog.Printf("Events: Connected to NATS at %s", conn.ConnectedUrl())

	b := New(conn)
	b.conn = conn
	return b, nil
}

// Subject returns the subject a change of table is published on.
func Subject(table, event string) string {
	return SubjectPrefix + "." + table + "." + event
}

// Broadcast publishes event for model. Hidden fields and sensitive keys are removed first.
// Failures are logged only.
func (b *Broadcaster) Broadcast(model *domain.Model, event string, data map[string]any) {
	if b == nil || b.pub == nil {
		return
	}

	clean := b.redactor.Redact(data)
	for _, f := range model.Fields {
		if f.IsHidden {
			delete(clean, f.Name)
		}
	}

	body, err := json.Marshal(Change{Event: event, Table: model.TableName, Data: clean})
	if err != nil {
		customLog.Warnf("Events: Failed to encode %s change for %s: %v", event, model.TableName, err)
		return
	}
	subject := Subject(model.TableName, event)
	if err := b.pub.Publish(subject, body); err != nil {
		customLog.Warnf("Events: Failed to publish on %s: %v", subject, err)
	}
}

// Close drains the NATS connection, if any.
func (b *Broadcaster) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		customLog.Warnf("Events: Failed to drain NATS connection: %v", err)
		b.conn.Close()
	}
}
