// Package transport bridges MQTT sensor traffic into the recorder. Polar
// bridge devices publish heart rate notifications and connection status to
// a broker; this package subscribes, decodes the payloads, and routes the
// samples into the recording coordinator.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/urap-lab/pulse-engine/internal/config"
	"github.com/urap-lab/pulse-engine/internal/recorder"
)

// dataMessage is one heart rate notification from a sensor bridge. A single
// notification carries the current heart rate plus zero or more RR intervals
// measured since the previous notification.
type dataMessage struct {
	SensorID    string `json:"sensorId"`
	Name        string `json:"name"`
	HeartRate   int    `json:"heartRate"`
	RRIntervals []int  `json:"rrIntervals"`
}

// statusMessage announces a sensor connecting or disconnecting.
type statusMessage struct {
	SensorID  string `json:"sensorId"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// Bridge subscribes to sensor topics and feeds the coordinator.
type Bridge struct {
	cfg    config.MQTTConfig
	coord  *recorder.Coordinator
	log    *log.Logger
	client mqtt.Client
}

// NewBridge creates a bridge; call Run to connect and subscribe.
func NewBridge(cfg config.MQTTConfig, coord *recorder.Coordinator, logger *log.Logger) *Bridge {
	return &Bridge{cfg: cfg, coord: coord, log: logger}
}

// Run connects to the broker and subscribes to the sensor data and status
// topics, then blocks until ctx is cancelled. The paho client reconnects
// and resubscribes automatically after broker outages.
func (b *Bridge) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
		opts.SetPassword(b.cfg.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetCleanSession(true)

	// Subscribe from OnConnect so the subscriptions come back after a
	// reconnect.
	opts.OnConnect = func(c mqtt.Client) {
		b.log.Printf("mqtt: connected to %s", b.cfg.Broker)
		b.subscribe(c, b.cfg.TopicPrefix+"/+/data", b.onData)
		b.subscribe(c, b.cfg.TopicPrefix+"/+/status", b.onStatus)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		b.log.Printf("mqtt: connection lost: %v (will auto-reconnect)", err)
	}

	b.client = mqtt.NewClient(opts)

	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt: connect timeout for %s", b.cfg.Broker)
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt: connect failed: %w", token.Error())
	}

	<-ctx.Done()
	b.client.Disconnect(250)
	return nil
}

func (b *Bridge) subscribe(c mqtt.Client, topic string, handler mqtt.MessageHandler) {
	token := c.Subscribe(topic, byte(b.cfg.QoS), handler)
	if !token.WaitTimeout(5 * time.Second) {
		b.log.Printf("mqtt: subscribe timeout for %s", topic)
		return
	}
	if token.Error() != nil {
		b.log.Printf("mqtt: subscribe error for %s: %v", topic, token.Error())
		return
	}
	b.log.Printf("mqtt: subscribed to %s", topic)
}

// onData routes one notification. The heart rate and every RR interval in
// the batch are stamped at receipt time; RR intervals carry the enclosing
// notification's timestamp rather than per-interval arrival times.
func (b *Bridge) onData(_ mqtt.Client, msg mqtt.Message) {
	var m dataMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		b.log.Printf("mqtt: bad data payload on %s: %v", msg.Topic(), err)
		return
	}
	if m.SensorID == "" {
		m.SensorID = sensorIDFromTopic(msg.Topic())
	}
	if m.SensorID == "" {
		return
	}

	b.coord.RouteHeartRate(m.SensorID, m.HeartRate)
	for _, rr := range m.RRIntervals {
		b.coord.RouteRRInterval(m.SensorID, rr)
	}
}

func (b *Bridge) onStatus(_ mqtt.Client, msg mqtt.Message) {
	var m statusMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		b.log.Printf("mqtt: bad status payload on %s: %v", msg.Topic(), err)
		return
	}
	if m.SensorID == "" {
		m.SensorID = sensorIDFromTopic(msg.Topic())
	}
	if m.SensorID == "" {
		return
	}

	if m.Connected {
		name := m.Name
		if name == "" {
			name = "Polar " + m.SensorID
		}
		b.coord.AddSensor(m.SensorID, name)
		b.log.Printf("mqtt: sensor %s (%s) connected", m.SensorID, name)
	} else {
		b.coord.RemoveSensor(m.SensorID)
		b.log.Printf("mqtt: sensor %s disconnected", m.SensorID)
	}
}

// sensorIDFromTopic extracts the sensor ID from "<prefix>/<id>/<leaf>".
func sensorIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
