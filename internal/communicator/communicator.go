package communicator

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bilal/g55-agent/internal/config"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// publishTimeout bounds a single publish so a broker outage delays the
// poll cycle instead of stalling it.
const publishTimeout = 10 * time.Second

// Communicator publishes discovery and state messages to the MQTT
// broker. Publishing is best-effort: failures are logged and dropped.
type Communicator struct {
	cfg       config.MQTTConfig
	brokerURL string
	auth      bool
	topics    Topics
	cm        *autopaho.ConnectionManager
}

// New creates communicator; it does NOT connect. Call Start.
func New(cfg *config.Config) *Communicator {
	mc := cfg.MQTT
	if mc.ClientID == "" {
		mc.ClientID = "g55-" + uuid.New().String()
	}
	return &Communicator{
		cfg:       mc,
		brokerURL: cfg.BrokerURL(),
		auth:      cfg.BrokerAuth(),
		topics:    Topics{Prefix: mc.DiscoveryPrefix},
	}
}

// Topics returns the topic layout used by this communicator.
func (c *Communicator) Topics() Topics { return c.topics }

// Start opens the broker connection and waits up to the configured
// connect timeout for it to come up. autopaho keeps reconnecting in the
// background after that, so a slow broker is logged rather than fatal.
func (c *Communicator) Start(ctx context.Context) error {
	u, err := url.Parse(c.brokerURL)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	avail := c.topics.Availability()
	pahoCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{u},
		KeepAlive:  30,
		WillMessage: &paho.WillMessage{
			Topic:   avail,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			log.Info().Str("broker", c.brokerURL).Msg("mqtt connected")
			c.publish(ctx, cm, Message{Topic: avail, Payload: "online", Retain: true})
		},
		OnConnectError: func(err error) {
			log.Warn().Err(err).Str("broker", c.brokerURL).Msg("mqtt connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
		},
	}
	if c.auth {
		pahoCfg.ConnectUsername = c.cfg.Username
		pahoCfg.ConnectPassword = []byte(c.cfg.Password)
	}
	if u.Scheme == "mqtts" || u.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm

	connCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.ConnectTimeoutSeconds)*time.Second)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		log.Warn().Err(err).Msg("mqtt initial connection timed out, retrying in background")
	}
	return nil
}

// PublishBatch publishes msgs in order.
func (c *Communicator) PublishBatch(ctx context.Context, msgs []Message) {
	for _, m := range msgs {
		c.publish(ctx, c.cm, m)
	}
	log.Debug().Int("count", len(msgs)).Msg("mqtt batch published")
}

// PublishOne publishes a single non-retained message.
func (c *Communicator) PublishOne(ctx context.Context, topic, payload string) {
	c.publish(ctx, c.cm, Message{Topic: topic, Payload: payload})
}

// Shutdown publishes "offline" and disconnects.
func (c *Communicator) Shutdown(ctx context.Context) {
	if c.cm == nil {
		return
	}
	c.publish(ctx, c.cm, Message{Topic: c.topics.Availability(), Payload: "offline", Retain: true})
	if err := c.cm.Disconnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Msg("mqtt disconnect failed")
		return
	}
	log.Info().Msg("mqtt disconnected")
}

func (c *Communicator) publish(ctx context.Context, cm *autopaho.ConnectionManager, m Message) {
	if cm == nil {
		log.Warn().Str("topic", m.Topic).Msg("mqtt not started, message dropped")
		return
	}

	var qos byte
	if m.Retain {
		qos = 1
	}

	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := cm.Publish(pctx, &paho.Publish{
		Topic:   m.Topic,
		Payload: []byte(m.Payload),
		QoS:     qos,
		Retain:  m.Retain,
	}); err != nil {
		log.Warn().Err(err).Str("topic", m.Topic).Msg("mqtt publish failed")
	}
}
