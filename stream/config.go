package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/eclipse/paho.mqtt.golang"
)

// OSCConfig addresses the renderer's OSC port.
type OSCConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Config is the output section of the configuration.
type Config struct {
	RateHz      float64    `koanf:"rate_hz"`
	Transport   string     `koanf:"transport"` // osc | mqtt
	Coordinates string     `koanf:"coordinates"`
	OSC         OSCConfig  `koanf:"osc"`
	MQTT        MQTTConfig `koanf:"mqtt"`
}

// Dial creates the configured transport. MQTT clients are connected before
// returning.
func Dial(cfg Config) (Transport, error) {
	switch strings.ToLower(cfg.Transport) {
	case "", "osc":
		if cfg.OSC.Port <= 0 {
			return nil, fmt.Errorf("osc transport: invalid port %d", cfg.OSC.Port)
		}
		return NewOSCTransport(cfg.OSC.Host, cfg.OSC.Port), nil
	case "mqtt":
		client := NewMQTTClient(cfg.MQTT, nil)
		if err := Connect(client, 10*time.Second); err != nil {
			return nil, err
		}
		return NewMQTTTransport(client, cfg.MQTT), nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

// Connect connects client, waiting up to timeout.
func Connect(client mqtt.Client, timeout time.Duration) error {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connect: timed out after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}
