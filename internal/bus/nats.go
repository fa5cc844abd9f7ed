package bus

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus maps colon separated channel names onto NATS subjects:
// "chat:room:r1" becomes "chat.room.r1", "chat:room:a.b" becomes
// "chat.room.a%2Eb" and the pattern "chat:room:*" becomes "chat.room.>".
type NATSBus struct {
	nc  *nats.Conn
	log *slog.Logger
}

// DialNATS connects with reconnect enabled; the bus owns the connection.
func DialNATS(serverURL string, log *slog.Logger) (*NATSBus, error) {
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(serverURL,
		nats.Name("chatgogo-realtime"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", serverURL, err)
	}
	return NewNATSBus(nc, log), nil
}

func NewNATSBus(nc *nats.Conn, log *slog.Logger) *NATSBus {
	if log == nil {
		log = slog.Default()
	}
	return &NATSBus{nc: nc, log: log.With("component", "nats-bus")}
}

// Publish is fire-and-forget; NATS does not report receivers.
func (b *NATSBus) Publish(_ context.Context, channel string, payload []byte) (int64, error) {
	if err := b.nc.Publish(subjectFor(channel, false), payload); err != nil {
		return 0, fmt.Errorf("nats publish %s: %w", channel, err)
	}
	return -1, nil
}

func (b *NATSBus) Subscribe(_ context.Context, pattern string, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(subjectFor(pattern, isPattern(pattern)), func(m *nats.Msg) {
		invoke(b.log, h, channelFor(m.Subject), m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", pattern, err)
	}
	// Flush guarantees the server has registered the interest before we return.
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	b.log.Info("subscribed", "pattern", pattern, "subject", sub.Subject)
	return natsSubscription{sub: sub}, nil
}

func (b *NATSBus) Close() error {
	if b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Close() error {
	return s.sub.Unsubscribe()
}

// subjectFor maps a channel onto a subject token by token. Bytes NATS treats
// specially (".", "*", ">", whitespace) and non-ASCII are percent-escaped, so a
// room id is always exactly one literal token. With pattern set a trailing "*"
// token becomes the ">" wildcard.
func subjectFor(channel string, pattern bool) string {
	tokens := strings.Split(channel, ":")
	for i, tok := range tokens {
		if pattern && i == len(tokens)-1 && tok == "*" {
			tokens[i] = ">"
			continue
		}
		tokens[i] = escapeToken(tok)
	}
	return strings.Join(tokens, ".")
}

func channelFor(subject string) string {
	tokens := strings.Split(subject, ".")
	for i, tok := range tokens {
		if raw, err := url.PathUnescape(tok); err == nil {
			tokens[i] = raw
		}
	}
	return strings.Join(tokens, ":")
}

func escapeToken(tok string) string {
	var b strings.Builder
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c <= ' ' || c >= 0x7f || c == '.' || c == '*' || c == '>' || c == '%' {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
