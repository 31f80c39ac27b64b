package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSRelay fans events out over core NATS subjects named
// <prefix>.challenge.<sessionID>. No JetStream: late subscribers get no replay.
type NATSRelay struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSRelay(nc *nats.Conn, prefix string) *NATSRelay {
	return &NATSRelay{nc: nc, prefix: prefix}
}

func DialNATS(url, prefix string, logger *slog.Logger) (*NATSRelay, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Error("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSRelay(nc, prefix), nil
}

func (r *NATSRelay) Publish(_ context.Context, sessionID string, data []byte) error {
	return r.nc.Publish(topic(r.prefix, ".", sessionID), data)
}

func (r *NATSRelay) Subscribe(ctx context.Context, deliver func(sessionID string, data []byte)) error {
	sub, err := r.nc.Subscribe(topic(r.prefix, ".", ">"), func(msg *nats.Msg) {
		if id, ok := sessionFromTopic(r.prefix, ".", msg.Subject); ok {
			deliver(id, msg.Data)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return ctx.Err()
}

func (r *NATSRelay) Ping(ctx context.Context) error {
	if !r.nc.IsConnected() {
		return errors.New("nats not connected")
	}
	return r.nc.FlushWithContext(ctx)
}

func (r *NATSRelay) Close() error {
	r.nc.Close()
	return nil
}
