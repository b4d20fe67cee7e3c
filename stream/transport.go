package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eclipse/paho.mqtt.golang"
	"github.com/hypebeast/go-osc/osc"
)

// Transport delivers batches to the renderer. SendBatch sends every message
// of the batch and flushes before returning.
type Transport interface {
	SendBatch(ctx context.Context, b Batch) error
	Close() error
}

// TransportError wraps a failed delivery.
type TransportError struct {
	Transport string
	Seq       uint64
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: batch %d: %v", e.Transport, e.Seq, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// oscSender is the part of the go-osc client used here.
type oscSender interface {
	Send(packet osc.Packet) error
}

// OSCTransport sends each batch as one OSC bundle over UDP.
type OSCTransport struct {
	client oscSender
}

// NewOSCTransport creates an OSCTransport for host:port.
func NewOSCTransport(host string, port int) *OSCTransport {
	return &OSCTransport{client: osc.NewClient(host, port)}
}

// SendBatch implements Transport.
func (t *OSCTransport) SendBatch(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bundle := osc.NewBundle(b.Time)
	for _, m := range b.Messages {
		msg := osc.NewMessage(m.Address)
		for _, a := range m.Args {
			msg.Append(a)
		}
		if err := bundle.Append(msg); err != nil {
			return &TransportError{Transport: "osc", Seq: b.Seq, Err: err}
		}
	}
	if err := t.client.Send(bundle); err != nil {
		return &TransportError{Transport: "osc", Seq: b.Seq, Err: err}
	}
	return nil
}

// Close implements Transport. UDP needs no teardown.
func (t *OSCTransport) Close() error { return nil }

// MQTTConfig configures the MQTT transport.
type MQTTConfig struct {
	URL      string        `koanf:"url"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	ClientID string        `koanf:"client_id"`
	Topic    string        `koanf:"topic"`
	QoS      byte          `koanf:"qos"`
	Timeout  time.Duration `koanf:"timeout"`
}

// NewMQTTClient builds a paho client from cfg.
func NewMQTTClient(cfg MQTTConfig, onConnect mqtt.OnConnectHandler) mqtt.Client {
	options := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetAutoReconnect(true)
	if onConnect != nil {
		options.SetOnConnectHandler(onConnect)
	}
	return mqtt.NewClient(options)
}

// MQTTTransport publishes each batch, binary encoded, to one topic.
type MQTTTransport struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTTTransport creates an MQTTTransport on a connected client.
func NewMQTTTransport(client mqtt.Client, cfg MQTTConfig) *MQTTTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	return &MQTTTransport{client: client, topic: cfg.Topic, qos: cfg.QoS, timeout: timeout}
}

// SendBatch implements Transport.
func (t *MQTTTransport) SendBatch(ctx context.Context, b Batch) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return &TransportError{Transport: "mqtt", Seq: b.Seq, Err: err}
	}
	token := t.client.Publish(t.topic, t.qos, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(t.timeout):
		return &TransportError{Transport: "mqtt", Seq: b.Seq, Err: errors.New("publish timed out")}
	}
	if err := token.Error(); err != nil {
		return &TransportError{Transport: "mqtt", Seq: b.Seq, Err: err}
	}
	return nil
}

// Close disconnects the client.
func (t *MQTTTransport) Close() error {
	t.client.Disconnect(250)
	return nil
}
