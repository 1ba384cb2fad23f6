package event_hub

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azeventhubs"
	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

const sendTimeout = 10 * time.Second

// connection string can carry the event hub name as EntityPath, in which case
// EventHubName is left empty.
// see https://learn.microsoft.com/en-us/azure/event-hubs/event-hubs-get-connection-string

type EventHubConfig struct {
	Connection   string `yaml:"connection"`
	EventHubName string `yaml:"EventHubName"`
}

type EventHub struct {
	producerClient *azeventhubs.ProducerClient
	logger         zerolog.Logger
}

func NewEventHub(ctx context.Context, wg *sync.WaitGroup, conf EventHubConfig, logger zerolog.Logger) (*EventHub, error) {
	producerClient, err := azeventhubs.NewProducerClientFromConnectionString(conf.Connection, conf.EventHubName, nil)
	if err != nil {
		return nil, errors.Join(err, errors.New("failed to create producer client"))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := producerClient.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to close producer client")
		}
	}()

	return &EventHub{
		producerClient: producerClient,
		logger:         logger,
	}, nil
}

func (e *EventHub) Name() string { return "event-hub" }

// SendSnapshot sends the snapshot followed by one event per anomaly record,
// packing them into as few batches as the hub allows.
func (e *EventHub) SendSnapshot(snap model.Snapshot) error {
	events, err := eventsForSnapshot(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	batch, err := e.producerClient.NewEventDataBatch(ctx, nil)
	if err != nil {
		return errors.Join(err, errors.New("failed to create event data batch"))
	}

	for i := 0; i < len(events); {
		err = batch.AddEventData(events[i], nil)
		if errors.Is(err, azeventhubs.ErrEventDataTooLarge) {
			if batch.NumEvents() == 0 {
				return errors.Join(err, errors.New("failed to send snapshot event is too large"))
			}
			// the batch is full: send it and retry this event on a fresh one
			if err = e.producerClient.SendEventDataBatch(ctx, batch, nil); err != nil {
				return errors.Join(err, errors.New("failed to send snapshot couldn't send the batch"))
			}
			if batch, err = e.producerClient.NewEventDataBatch(ctx, nil); err != nil {
				return errors.Join(err, errors.New("failed to send snapshot couldn't create a new batch"))
			}
			continue
		} else if err != nil {
			return errors.Join(err, errors.New("failed to send snapshot"))
		}
		i++
	}

	if batch.NumEvents() > 0 {
		if err := e.producerClient.SendEventDataBatch(ctx, batch, nil); err != nil {
			return errors.Join(err, errors.New("failed to send snapshot couldn't send the batch"))
		}
	}
	return nil
}

func eventsForSnapshot(snap model.Snapshot) ([]*azeventhubs.EventData, error) {
	seq := strconv.FormatUint(snap.Sequence, 10)

	buf, err := json.Marshal(snap)
	if err != nil {
		return nil, errors.Join(err, errors.New("failed to marshal snapshot"))
	}
	events := []*azeventhubs.EventData{createEvent(buf, "snapshot", seq)}

	for _, a := range snap.Anomalies {
		buf, err = json.Marshal(a)
		if err != nil {
			return nil, errors.Join(err, errors.New("failed to marshal anomaly"))
		}
		events = append(events, createEvent(buf, "anomaly", seq))
	}
	return events, nil
}

func createEvent(buf []byte, kind, seq string) *azeventhubs.EventData {
	contentType := "application/json"
	return &azeventhubs.EventData{
		Body:        buf,
		ContentType: &contentType,
		Properties: map[string]any{
			"kind":     kind,
			"sequence": seq,
		},
	}
}
