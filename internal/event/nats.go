package event

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSBus implements Bus on a NATS connection so multiple service instances
// observe each other's writes.
type NATSBus struct {
	nc *nats.Conn
}

// ConnectNATS dials the given NATS URL and wraps the connection in a Bus.
func ConnectNATS(url string) (*NATSBus, error) {
	nc, err := nats.Connect(url, nats.Name("jamiah-chat"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBus{nc: nc}, nil
}

var _ Bus = (*NATSBus)(nil)

func (b *NATSBus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

func (b *NATSBus) Subscribe(subject string, h Handler) (func(), error) {
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		h(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *NATSBus) Close() error {
	return b.nc.Drain()
}
