package marketdata

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	natslib "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/mExOms/sor/pkg/types"
)

// SubjectBooks carries order book snapshots published by venue gateways.
// Format: sor.marketdata.book.{venue}.{symbol}
const SubjectBooks = "sor.marketdata.book"

// Listener feeds externally published book snapshots into the snapshot
// service, so routing decisions can use books maintained by gateway
// processes instead of REST polling.
type Listener struct {
	nc      *natslib.Conn
	service *SnapshotService
	logger  *logrus.Entry
	subs    []*natslib.Subscription
}

// NewListener connects to NATS and attaches to the snapshot service
func NewListener(natsURL string, service *SnapshotService) (*Listener, error) {
	nc, err := natslib.Connect(natsURL,
		natslib.MaxReconnects(-1),
		natslib.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Listener{
		nc:      nc,
		service: service,
		logger:  logrus.WithField("component", "book-listener"),
	}, nil
}

// Start subscribes to book snapshots from every venue
func (l *Listener) Start() error {
	subject := SubjectBooks + ".>"
	sub, err := l.nc.Subscribe(subject, l.handleBook)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	l.subs = append(l.subs, sub)
	l.logger.Infof("Subscribed to %s", subject)
	return nil
}

// Stop drops subscriptions and closes the connection
func (l *Listener) Stop() {
	for _, sub := range l.subs {
		if err := sub.Unsubscribe(); err != nil {
			l.logger.WithError(err).Warn("unsubscribe failed")
		}
	}
	l.nc.Close()
}

// handleBook decodes one snapshot and pushes it into the book cache.
// The subject names the venue and symbol; the payload wins on conflict.
func (l *Listener) handleBook(msg *natslib.Msg) {
	parts := strings.Split(msg.Subject, ".")
	if len(parts) < 5 {
		l.logger.Warnf("Invalid book subject: %s", msg.Subject)
		return
	}

	var book types.OrderBook
	if err := json.Unmarshal(msg.Data, &book); err != nil {
		l.logger.WithError(err).Errorf("Bad book snapshot on %s", msg.Subject)
		return
	}

	if book.Venue == "" {
		book.Venue = parts[3]
	}
	if book.Symbol == "" {
		book.Symbol = parts[4]
	}

	l.service.UpdateBook(&book)
}
