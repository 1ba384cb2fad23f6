package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	pmqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

type sent struct {
	topic   string
	qos     byte
	payload []byte
}

func newTestMqtt(anomalyTopic string, fail error) (*Mqtt, *[]sent) {
	var out []sent
	m := &Mqtt{
		Topic:        "fleet/snapshot",
		AnomalyTopic: anomalyTopic,
		logger:       zerolog.Nop(),
		publish: func(topic string, qos byte, payload []byte) error {
			out = append(out, sent{topic, qos, payload})
			return fail
		},
	}
	return m, &out
}

func TestSendSnapshotRoutesAnomalies(t *testing.T) {
	m, out := newTestMqtt("fleet/anomaly", nil)
	snap := model.Snapshot{
		Sequence: 9,
		Anomalies: []model.AnomalyRecord{
			{ID: "a1", EquipmentID: "PUMP_002", AnomalyScore: -0.1},
		},
	}
	if err := m.SendSnapshot(snap); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(*out) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*out))
	}
	if (*out)[0].topic != "fleet/snapshot" || (*out)[0].qos != 1 {
		t.Fatalf("unexpected snapshot publish %+v", (*out)[0])
	}
	if (*out)[1].topic != "fleet/anomaly/PUMP_002" {
		t.Fatalf("unexpected anomaly topic %s", (*out)[1].topic)
	}
	var rec model.AnomalyRecord
	if err := json.Unmarshal((*out)[1].payload, &rec); err != nil || rec.ID != "a1" {
		t.Fatalf("bad anomaly payload %s (%v)", (*out)[1].payload, err)
	}
}

func TestSendSnapshotWithoutAnomalyTopic(t *testing.T) {
	m, out := newTestMqtt("", nil)
	snap := model.Snapshot{Anomalies: []model.AnomalyRecord{{ID: "a1", EquipmentID: "X"}}}
	if err := m.SendSnapshot(snap); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(*out) != 1 {
		t.Fatalf("expected only the snapshot publish, got %d", len(*out))
	}
}

func TestSendSnapshotSurfacesPublishError(t *testing.T) {
	broker := errors.New("not connected")
	m, _ := newTestMqtt("", broker)
	if err := m.SendSnapshot(model.Snapshot{}); !errors.Is(err, broker) {
		t.Fatalf("expected publish error, got %v", err)
	}
}

type stalledToken struct {
	pmqtt.Token
}

func (stalledToken) WaitTimeout(time.Duration) bool { return false }

type stalledClient struct {
	pmqtt.Client
	published []string
}

func (c *stalledClient) Publish(topic string, _ byte, _ bool, _ interface{}) pmqtt.Token {
	c.published = append(c.published, topic)
	return stalledToken{}
}

func TestClientPublishTimeoutIsAnError(t *testing.T) {
	c := &stalledClient{}
	m := &Mqtt{Topic: "fleet/snapshot", logger: zerolog.Nop(), client: c}
	m.publish = m.clientPublish

	err := m.SendSnapshot(model.Snapshot{Sequence: 3})
	if !errors.Is(err, ErrPublishTimeout) {
		t.Fatalf("expected ErrPublishTimeout, got %v", err)
	}
	if len(c.published) != 1 || c.published[0] != "fleet/snapshot" {
		t.Fatalf("unexpected publishes %v", c.published)
	}
}

func TestSendSnapshotStopsOnAnomalyTimeout(t *testing.T) {
	m, out := newTestMqtt("fleet/anomaly", nil)
	calls := 0
	m.publish = func(topic string, qos byte, payload []byte) error {
		calls++
		*out = append(*out, sent{topic, qos, payload})
		if calls > 1 {
			return ErrPublishTimeout
		}
		return nil
	}
	snap := model.Snapshot{Anomalies: []model.AnomalyRecord{
		{ID: "a1", EquipmentID: "PUMP_002"},
		{ID: "a2", EquipmentID: "MOTOR_003"},
	}}
	if err := m.SendSnapshot(snap); !errors.Is(err, ErrPublishTimeout) {
		t.Fatalf("expected ErrPublishTimeout, got %v", err)
	}
	if len(*out) != 2 {
		t.Fatalf("expected publishing to stop at the stalled anomaly, got %d sends", len(*out))
	}
}
