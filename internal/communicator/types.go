package communicator

import "time"

// Message is one MQTT publish.
type Message struct {
	Topic   string
	Payload string
	Retain  bool
}

// Telemetry is the JSON record mirrored to Kafka once per published cycle.
type Telemetry struct {
	CycleID   string            `json:"cycle_id"`
	Timestamp time.Time         `json:"timestamp"`
	Host      string            `json:"host"`
	Values    map[string]string `json:"values"`
}

// Topics builds the Home Assistant topic names for the g55 sensors.
type Topics struct {
	Prefix string // discovery prefix, usually "homeassistant"
}

func (t Topics) base(key string) string {
	return t.Prefix + "/sensor/g55_" + key
}

// Config is the retained discovery topic for key.
func (t Topics) Config(key string) string { return t.base(key) + "/config" }

// State is the plain-text state topic for key.
func (t Topics) State(key string) string { return t.base(key) + "/state" }

// Availability carries "online"/"offline" for the agent itself.
func (t Topics) Availability() string { return t.Prefix + "/sensor/g55/availability" }
