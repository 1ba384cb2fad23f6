package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	pmqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

const publishTimeout = 200 * time.Millisecond

var ErrPublishTimeout = errors.New("mqtt publish timeout")

// MqttConf holds the configuration for the MQTT client.
type MqttConf struct {
	Connection   string `yaml:"Connection"`
	Topic        string `yaml:"Topic"`
	AnomalyTopic string `yaml:"AnomalyTopic"`
}

// Mqtt publishes fleet snapshots, and optionally each anomaly on its own
// topic, to an MQTT broker.
type Mqtt struct {
	Topic        string
	AnomalyTopic string
	MgtUrl       string
	ClientID     uuid.UUID
	logger       zerolog.Logger
	opt          *pmqtt.ClientOptions
	client       pmqtt.Client
	publish      func(topic string, qos byte, payload []byte) error
}

func NewMqtt(conf MqttConf, logger zerolog.Logger, ctx context.Context, wg *sync.WaitGroup) (*Mqtt, error) {
	var (
		err        error
		cid        uuid.UUID
		mqttClient *Mqtt
	)

	cid = uuid.NewV4()
	mqttClient = &Mqtt{
		Topic:        conf.Topic,
		AnomalyTopic: conf.AnomalyTopic,
		MgtUrl:       conf.Connection,
		logger:       logger,
		ClientID:     cid,
		opt: pmqtt.NewClientOptions().
			AddBroker(conf.Connection).
			SetClientID("edge-iot-sim-" + cid.String()).
			SetCleanSession(true).
			SetAutoReconnect(true).
			SetTLSConfig(&tls.Config{
				InsecureSkipVerify: true,
			}).
			SetConnectionLostHandler(ConnectLostHandler(logger)).
			SetOnConnectHandler(ConnectHandler(logger)),
	}
	mqttClient.publish = mqttClient.clientPublish

	err = mqttClient.Connect()
	if err != nil {
		return nil, err
	}
	mqttClient.setupContextListener(ctx, wg)

	return mqttClient, nil
}

// setupContextListener ensures proper disconnection when the context is canceled.
func (m *Mqtt) setupContextListener(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		m.client.Disconnect(250)
		m.logger.Warn().Msg("Mqtt disconnected")
	}()
}

func (m *Mqtt) Name() string { return "mqtt" }

// SendSnapshot publishes the snapshot on Topic, then each anomaly record on
// AnomalyTopic when one is configured.
func (m *Mqtt) SendSnapshot(snap model.Snapshot) error {
	var (
		err error
		b   []byte
	)

	b, err = json.Marshal(snap)
	if err != nil {
		return errors.Join(err, errors.New("failed to marshal snapshot"))
	}
	if err = m.publish(m.Topic, 1, b); err != nil {
		return errors.Join(err, fmt.Errorf("publish snapshot %d", snap.Sequence))
	}

	if m.AnomalyTopic == "" {
		return nil
	}
	for _, a := range snap.Anomalies {
		b, err = json.Marshal(a)
		if err != nil {
			return errors.Join(err, errors.New("failed to marshal anomaly"))
		}
		if err = m.publish(m.AnomalyTopic+"/"+a.EquipmentID, 1, b); err != nil {
			return errors.Join(err, fmt.Errorf("publish anomaly %s", a.ID))
		}
	}
	return nil
}

func (m *Mqtt) clientPublish(topic string, qos byte, payload []byte) error {
	token := m.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		m.logger.Error().Str("topic", topic).Msg("Timeout exceeded during publishing")
		return ErrPublishTimeout
	}
	return token.Error()
}

func (m *Mqtt) Connect() error {
	m.client = pmqtt.NewClient(m.opt)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		m.logger.Error().Err(token.Error()).Msg("Error connecting to mqtt broker")
		return errors.Join(token.Error(), errors.New("Error connecting to mqtt broker"))
	}
	return nil
}

func ConnectHandler(logger zerolog.Logger) func(client pmqtt.Client) {
	return func(client pmqtt.Client) {
		logger.Info().Msg("Connected to mqtt broker")
	}
}

func ConnectLostHandler(logger zerolog.Logger) func(client pmqtt.Client, err error) {
	return func(client pmqtt.Client, err error) {
		logger.Warn().Err(err).Msg("Connection Lost")
	}
}
