// Package mqtt publishes assessment results to an MQTT broker. It wraps the
// Eclipse Paho library, relies on its automatic reconnection, and supports
// optional TLS transport.
package mqtt

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"rand-assess/internal/metrics"
	"rand-assess/internal/tlsconfig"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Config holds the parameters required to connect to an MQTT broker.
type Config struct {
	BrokerURL string // e.g., "tcp://127.0.0.1:1883" or "ssl://mqtt.example.com:8883"
	ClientID  string // optional; if empty, a random ID is generated
	QoS       byte   // 0 or 1
	Username  string
	Password  string
	TLSCAFile string // optional; CA bundle for TLS brokers
}

// Client is a publish-only MQTT client.
type Client struct {
	config          Config
	pahoClient      paho.Client
	connectAttempts int32
}

// NewClient validates the configuration and constructs an MQTT client. The
// connection is not opened until Connect is called.
func NewClient(config Config) (*Client, error) {
	if config.BrokerURL == "" {
		return nil, errors.New("mqtt: BrokerURL required")
	}
	if config.ClientID == "" {
		config.ClientID = generateClientID()
	}
	if config.QoS > 1 {
		config.QoS = 1
	}

	client := &Client{config: config}

	opts := paho.NewClientOptions().
		AddBroker(config.BrokerURL).
		SetClientID(config.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetKeepAlive(20 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) {
			client.handleConnect()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			metrics.SetMQTTConnected(false)
			metrics.RecordMQTTDisconnect()
			if err != nil {
				log.Printf("mqtt: connection lost: %v", err)
			} else {
				log.Printf("mqtt: connection lost (reason unknown)")
			}
		})

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	if isTLSBroker(config.BrokerURL) {
		tlsConfig, err := tlsconfig.Client(config.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("mqtt: TLS configuration failed: %w", err)
		}
		if config.TLSCAFile != "" {
			log.Printf("mqtt: using custom CA certificate from %s", config.TLSCAFile)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	client.pahoClient = paho.NewClient(opts)
	return client, nil
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.config.ClientID
}

// isTLSBroker reports whether the broker URL scheme implies a TLS transport.
func isTLSBroker(brokerURL string) bool {
	lower := strings.ToLower(brokerURL)
	return strings.HasPrefix(lower, "ssl://") ||
		strings.HasPrefix(lower, "tls://") ||
		strings.HasPrefix(lower, "mqtts://") ||
		strings.HasPrefix(lower, "tcps://")
}

func generateClientID() string {
	return "rand-assess-" + uuid.NewString()
}

// Connect opens the connection and blocks until the broker acknowledges it
// or ten seconds elapse.
func (c *Client) Connect() error {
	if c.pahoClient == nil {
		return errors.New("mqtt: client not initialized")
	}

	token := c.pahoClient.Connect()
	if !token.WaitTimeout(connectTimeout) {
		metrics.SetMQTTConnected(false)
		return errors.New("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		metrics.SetMQTTConnected(false)
		return fmt.Errorf("mqtt: connect failed: %w", err)
	}
	return nil
}

// Publish sends payload to topic at the configured QoS and waits for the
// broker acknowledgement when QoS is 1.
func (c *Client) Publish(topic string, payload []byte) error {
	if c.pahoClient == nil {
		return errors.New("mqtt: client not initialized")
	}
	if topic == "" {
		return errors.New("mqtt: empty topic")
	}

	token := c.pahoClient.Publish(topic, c.config.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		metrics.RecordMQTTPublish(false)
		return fmt.Errorf("mqtt: publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		metrics.RecordMQTTPublish(false)
		return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
	}
	metrics.RecordMQTTPublish(true)
	return nil
}

// Close disconnects from the broker with a 250 ms quiesce period.
func (c *Client) Close() {
	metrics.SetMQTTConnected(false)

	if c.pahoClient != nil && c.pahoClient.IsConnectionOpen() {
		metrics.RecordMQTTDisconnect()
		c.pahoClient.Disconnect(250) // ms
	}
}

// handleConnect runs on every connection, including automatic reconnects.
func (c *Client) handleConnect() {
	if atomic.AddInt32(&c.connectAttempts, 1) > 1 {
		metrics.RecordMQTTReconnect()
		log.Printf("mqtt: reconnected to %s", c.config.BrokerURL)
	} else {
		log.Printf("mqtt: connected to %s as %s (QoS=%d)", c.config.BrokerURL, c.config.ClientID, c.config.QoS)
	}

	metrics.SetMQTTConnected(true)
	metrics.RecordMQTTConnect()
}
