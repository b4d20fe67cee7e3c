package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eclipse/paho.mqtt.golang"

	"github.com/matt-g-everett/spatx/logging"
)

// CommandMessage is the JSON payload of an MQTT command.
type CommandMessage struct {
	Command string `json:"command"`
	Args    []any  `json:"args"`
}

// MQTTCommands receives JSON commands on an MQTT topic.
type MQTTCommands struct {
	client mqtt.Client
	topic  string
	cmd    *Commander
	log    logging.Logger
}

// NewMQTTCommands creates a subscriber for topic.
func NewMQTTCommands(client mqtt.Client, topic string, cmd *Commander, log logging.Logger) *MQTTCommands {
	return &MQTTCommands{client: client, topic: topic, cmd: cmd, log: logging.OrNoop(log)}
}

// Subscribe starts receiving commands.
func (m *MQTTCommands) Subscribe() error {
	token := m.client.Subscribe(m.topic, 0, m.handle)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", m.topic, token.Error())
	}
	m.log.Info(context.Background(), "mqtt commands subscribed", logging.String("topic", m.topic))
	return nil
}

// Unsubscribe stops receiving commands.
func (m *MQTTCommands) Unsubscribe() {
	m.client.Unsubscribe(m.topic).Wait()
}

func (m *MQTTCommands) handle(_ mqtt.Client, msg mqtt.Message) {
	ctx := context.Background()
	m.log.Debug(ctx, "mqtt command received",
		logging.Int("message_id", int(msg.MessageID())), logging.String("topic", msg.Topic()))

	var message CommandMessage
	if err := json.Unmarshal(msg.Payload(), &message); err != nil {
		m.log.Warn(ctx, "mqtt command malformed", logging.Err(err))
		return
	}
	if _, err := m.cmd.Dispatch(ctx, "mqtt", message.Command, message.Args); err != nil {
		m.log.Warn(ctx, "mqtt command failed", logging.String("command", message.Command), logging.Err(err))
	}
}
