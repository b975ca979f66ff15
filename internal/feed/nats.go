package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/pkg/types"
)

const (
	// SubjectOrderUpdates carries venue execution updates; the last
	// token is the venue id
	SubjectOrderUpdates = "sor.orders.update"

	subjectOrderUpdatesAll = SubjectOrderUpdates + ".*"
)

// NatsFeed bridges order updates over NATS so venue gateways running in
// other processes can report fills to the router.
type NatsFeed struct {
	conn   *nats.Conn
	logger *logrus.Entry
	subs   []*nats.Subscription
}

// NewNatsFeed connects to NATS with unlimited reconnects
func NewNatsFeed(url, clientID string) (*NatsFeed, error) {
	logger := logrus.WithField("component", "order-feed")

	opts := []nats.Option{
		nats.Name(clientID),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Errorf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Errorf("NATS error: %v", err)
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NatsFeed{
		conn:   conn,
		logger: logger,
	}, nil
}

// Subscribe delivers every order update published on the feed to handler.
// Malformed messages are logged and skipped.
func (f *NatsFeed) Subscribe(handler func(types.OrderUpdate)) error {
	sub, err := f.conn.Subscribe(subjectOrderUpdatesAll, func(msg *nats.Msg) {
		var update types.OrderUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			f.logger.WithError(err).Errorf("Bad order update on %s", msg.Subject)
			return
		}
		handler(update)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subjectOrderUpdatesAll, err)
	}

	f.subs = append(f.subs, sub)
	f.logger.Infof("Subscribed to %s", subjectOrderUpdatesAll)
	return nil
}

// Publish reports a venue execution update
func (f *NatsFeed) Publish(update types.OrderUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal order update: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectOrderUpdates, update.Venue)
	if err := f.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	f.logger.Debugf("Published to %s", subject)
	return nil
}

// Close drops subscriptions and the connection
func (f *NatsFeed) Close() {
	for _, sub := range f.subs {
		if err := sub.Unsubscribe(); err != nil {
			f.logger.WithError(err).Warn("unsubscribe failed")
		}
	}
	if f.conn != nil {
		f.conn.Close()
	}
}
