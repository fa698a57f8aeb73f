package communicator

import (
	"encoding/json"
	"fmt"

	"github.com/bilal/g55-agent/internal/scrape"
)

// Keys of sensors that do not come from a scraped page.
const (
	ParserStatus = "parser_status"
	AuthToken    = "auth_token"
	PingLatency  = "ping_latency"
	PingLoss     = "ping_loss"
)

// Parser status texts published on the parser_status state topic.
const (
	StatusWorking     = "Working"
	StatusAuthorizing = "Authorizing"
	StatusCantAuth    = "Can't authenticate"
)

const namePrefix = "XPON ONU "

// Sensor describes one Home Assistant sensor entity.
type Sensor struct {
	Key         string
	Name        string
	DeviceClass string
	Unit        string
}

// SensorConfig is the discovery payload for a sensor.
type SensorConfig struct {
	Name              string `json:"name"`
	DeviceClass       string `json:"device_class,omitempty"`
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	StateTopic        string `json:"state_topic"`
}

var baseSensors = []Sensor{
	{Key: ParserStatus, Name: "Parser Status"},
	{Key: AuthToken, Name: "Login Token"},
	{Key: scrape.RxPower, Name: "Optical Module Input Power", DeviceClass: "signal_strength", Unit: "dBm"},
	{Key: scrape.TxPower, Name: "Optical Module Output Power", DeviceClass: "signal_strength", Unit: "dBm"},
	{Key: scrape.LoidState, Name: "GPON State"},
	{Key: scrape.SupplyVoltage, Name: "Optical Module Supply Voltage", DeviceClass: "voltage", Unit: "V"},
	{Key: scrape.BiasCurrent, Name: "Optical Transmitter Bias Current", DeviceClass: "current", Unit: "mA"},
	{Key: scrape.Temp, Name: "Operating Temperature of the Optical Module", DeviceClass: "temperature", Unit: "°C"},
	{Key: scrape.PonSymPerAlarm, Name: "PonSymPerAlarm"},
	{Key: scrape.PonFrameAlarm, Name: "PonFrameAlarm"},
	{Key: scrape.PonFraPerAlarm, Name: "PonFraPerAlarm"},
	{Key: scrape.PonSecSumAlarm, Name: "PonSecSumAlarm"},
	{Key: scrape.PonDygaspAlarm, Name: "PonDygaspAlarm"},
	{Key: scrape.PonLinkAlarm, Name: "PonLinkAlarm"},
	{Key: scrape.PonCirEveAlarm, Name: "PonCirEveAlarm"},
}

var pingSensors = []Sensor{
	{Key: PingLatency, Name: "Ping Latency", DeviceClass: "duration", Unit: "ms"},
	{Key: PingLoss, Name: "Ping Packet Loss", Unit: "%"},
}

// Sensors returns the sensor catalog, with the ICMP sensors appended
// when withPing is set.
func Sensors(withPing bool) []Sensor {
	out := append([]Sensor(nil), baseSensors...)
	if withPing {
		out = append(out, pingSensors...)
	}
	return out
}

// Discovery renders the retained discovery messages for sensors. The
// output depends only on its arguments.
func Discovery(t Topics, sensors []Sensor) ([]Message, error) {
	msgs := make([]Message, 0, len(sensors))
	for _, s := range sensors {
		payload, err := json.Marshal(SensorConfig{
			Name:              namePrefix + s.Name,
			DeviceClass:       s.DeviceClass,
			UnitOfMeasurement: s.Unit,
			StateTopic:        t.State(s.Key),
		})
		if err != nil {
			return nil, fmt.Errorf("marshal discovery for %s: %w", s.Key, err)
		}
		msgs = append(msgs, Message{Topic: t.Config(s.Key), Payload: string(payload), Retain: true})
	}
	return msgs, nil
}

// States renders one state message per snapshot reading.
func States(t Topics, s scrape.Snapshot) []Message {
	readings := s.Readings()
	msgs := make([]Message, 0, len(readings))
	for _, r := range readings {
		msgs = append(msgs, Message{Topic: t.State(r.Key), Payload: r.Value.String()})
	}
	return msgs
}
