// Package telemetry is an optional, read-only fan-out of dispatched ARI
// events and final run statistics to an external message bus, adapted
// from the proxy's messagebus abstraction (same Connect/Publish/Close
// shape, repurposed from bidirectional command proxying to one-way
// observability). Disabled whenever no bus URL is configured.
package telemetry

import (
	"encoding/json"
	"strings"

	log15 "github.com/inconshreveable/log15"
	"github.com/nats-io/nats.go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rotisserie/eris"
)

// Publisher fans out events and stats to a message bus. Connect/Close
// are no-ops on the nil-bus Publisher returned when telemetry is
// disabled, so callers never need to branch on whether it's configured.
type Publisher interface {
	Connect() error
	PublishEvent(subject string, payload any)
	PublishStats(stats map[string]int64)
	Close()
}

// Subjects used for published messages, prefixed the way the proxy
// prefixes its own ARI subjects.
const (
	subjectPrefix = "ariloadgen."
	eventSubject  = subjectPrefix + "event"
	statsSubject  = subjectPrefix + "stats"
)

// New returns a Publisher for busURL. An empty busURL returns a
// disabled no-op publisher. The scheme ("nats://" or "amqp://")
// selects the transport.
func New(busURL string, log log15.Logger) (Publisher, error) {
	if busURL == "" {
		return noopPublisher{}, nil
	}
	if log == nil {
		log = log15.Root()
	}

	switch {
	case strings.HasPrefix(busURL, "nats://"):
		return &natsPublisher{url: busURL, log: log}, nil
	case strings.HasPrefix(busURL, "amqp://"):
		return &amqpPublisher{url: busURL, log: log}, nil
	default:
		return nil, eris.Errorf("telemetry: unrecognized bus url scheme %q", busURL)
	}
}

type noopPublisher struct{}

func (noopPublisher) Connect() error                { return nil }
func (noopPublisher) PublishEvent(string, any)      {}
func (noopPublisher) PublishStats(map[string]int64) {}
func (noopPublisher) Close()                        {}

type natsPublisher struct {
	url  string
	log  log15.Logger
	conn *nats.Conn
}

func (p *natsPublisher) Connect() error {
	conn, err := nats.Connect(p.url)
	if err != nil {
		return eris.Wrapf(err, "connect to nats bus %s", p.url)
	}
	p.conn = conn
	return nil
}

func (p *natsPublisher) PublishEvent(subject string, payload any) {
	p.publish(eventSubject+"."+subject, payload)
}

func (p *natsPublisher) PublishStats(stats map[string]int64) {
	p.publish(statsSubject, stats)
}

func (p *natsPublisher) publish(subject string, payload any) {
	if p.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Debug("telemetry: marshal failed", "subject", subject, "err", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Debug("telemetry: publish failed", "subject", subject, "err", err)
	}
}

func (p *natsPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

type amqpPublisher struct {
	url     string
	log     log15.Logger
	conn    *amqp.Connection
	channel *amqp.Channel
}

const amqpExchange = "ariloadgen.telemetry"

func (p *amqpPublisher) Connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return eris.Wrapf(err, "connect to amqp bus %s", p.url)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return eris.Wrap(err, "open amqp channel")
	}
	if err := ch.ExchangeDeclare(amqpExchange, "topic", false, true, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return eris.Wrap(err, "declare amqp exchange")
	}
	p.conn, p.channel = conn, ch
	return nil
}

func (p *amqpPublisher) PublishEvent(subject string, payload any) {
	p.publish(eventSubject+"."+subject, payload)
}

func (p *amqpPublisher) PublishStats(stats map[string]int64) {
	p.publish(statsSubject, stats)
}

func (p *amqpPublisher) publish(routingKey string, payload any) {
	if p.channel == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Debug("telemetry: marshal failed", "routingKey", routingKey, "err", err)
		return
	}
	err = p.channel.Publish(amqpExchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        data,
	})
	if err != nil {
		p.log.Debug("telemetry: publish failed", "routingKey", routingKey, "err", err)
	}
}

func (p *amqpPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
