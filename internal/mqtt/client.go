package mqtt

import (
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/shuttercam/shuttercam/internal/config"
	"github.com/shuttercam/shuttercam/internal/debug"
)

// DefaultTopicPrefix is used when the config leaves topic_prefix empty.
const DefaultTopicPrefix = "shuttercam"

// Connect opens a broker connection from the file-level MQTT section.
func Connect(cfg config.MQTTConfig) (paho.Client, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("%w: mqtt.broker is empty", config.ErrMalformedProfile)
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "shuttercam-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetOnConnectHandler(func(paho.Client) {
		debug.Verbose("MQTT: connection established (%s)", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		debug.Warn("MQTT: connection lost: %v", err)
	})
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	log := debug.Component("mqtt")
	log.Info().Str("broker", cfg.Broker).Str("client_id", clientID).Msg("connected")
	return client, nil
}
