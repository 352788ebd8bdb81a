package bus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"visionhealth-backend/internal/logger"
)

const (
	SubjectCollect       = "health.collect"
	SubjectAlertFiring   = "alert.firing"
	SubjectAlertResolved = "alert.resolved"
	SubjectRuleCreated   = "rule.created"
	SubjectRuleUpdated   = "rule.updated"
	SubjectRuleEnabled   = "rule.enabled"
	SubjectRuleDisabled  = "rule.disabled"
)

// Connect dials NATS with reconnect logging. One connection is shared by
// the publisher and the subscriber of a process.
func Connect(url, name string) (*nats.Conn, error) {
	log := logger.WithComponent("bus")
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DrainTimeout(drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
}

type Publisher struct {
	Conn *nats.Conn
}

func NewPublisher(conn *nats.Conn) *Publisher {
	return &Publisher{Conn: conn}
}

// Close drains pending publishes and subscriptions and returns once the
// connection is closed or drainTimeout has passed.
func (p *Publisher) Close() {
	if p.Conn != nil {
		closeConn(p.Conn, drainTimeout)
	}
}

const drainTimeout = 5 * time.Second

type drainableConn interface {
	Drain() error
	IsClosed() bool
	Close()
}

// Drain is asynchronous; the connection reports closed when it finishes.
func closeConn(c drainableConn, timeout time.Duration) {
	if err := c.Drain(); err != nil {
		c.Close()
		return
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for !c.IsClosed() {
		select {
		case <-deadline.C:
			logger.WithComponent("bus").Warn().Dur("timeout", timeout).Msg("nats drain did not finish, closing")
			c.Close()
			return
		case <-tick.C:
		}
	}
}

func (p *Publisher) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Conn.Publish(subject, data)
}

type Subscriber struct {
	Conn *nats.Conn
}

// CollectRequest asks for one collect cycle of an org.
type CollectRequest struct {
	OrgID string `json:"org_id"`
}

func NewSubscriber(conn *nats.Conn) *Subscriber {
	return &Subscriber{Conn: conn}
}

// SubscribeCollect delivers decoded collect requests. Malformed messages
// are logged and dropped.
func (s *Subscriber) SubscribeCollect(handler func(CollectRequest)) (*nats.Subscription, error) {
	return s.Conn.Subscribe(SubjectCollect, func(msg *nats.Msg) {
		req, ok := decodeCollect(msg.Data)
		if !ok {
			logger.WithComponent("bus").Warn().Str("subject", msg.Subject).Bytes("data", msg.Data).Msg("dropping malformed collect request")
			return
		}
		handler(req)
	})
}

func decodeCollect(data []byte) (CollectRequest, bool) {
	var req CollectRequest
	if err := json.Unmarshal(data, &req); err != nil || req.OrgID == "" {
		return CollectRequest{}, false
	}
	return req, true
}
