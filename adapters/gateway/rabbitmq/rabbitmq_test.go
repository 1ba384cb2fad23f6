package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

func TestSendSnapshotQueuesJSON(t *testing.T) {
	r := NewRabbitMQ(RabbitMQConfig{QueueName: "fleet", QueueDepth: 1}, zerolog.Nop())

	if err := r.SendSnapshot(model.Snapshot{Sequence: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := r.SendSnapshot(model.Snapshot{Sequence: 2}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	var got model.Snapshot
	if err := json.Unmarshal(<-r.msgs, &got); err != nil || got.Sequence != 1 {
		t.Fatalf("unexpected queued message %+v (%v)", got, err)
	}
}

func TestConsumePublishesAndReconnects(t *testing.T) {
	r := NewRabbitMQ(RabbitMQConfig{QueueName: "fleet"}, zerolog.Nop())

	var (
		mu        sync.Mutex
		published int
		connects  int
	)
	r.connectFn = func() error {
		mu.Lock()
		defer mu.Unlock()
		connects++
		return nil
	}
	r.publish = func([]byte) error {
		mu.Lock()
		defer mu.Unlock()
		published++
		if published == 1 {
			return errors.New("channel closed")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	if err := r.Start(ctx, wg); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := r.SendSnapshot(model.Snapshot{Sequence: uint64(i)}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		done := published == 3
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("messages were not published")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	wg.Wait()

	if connects != 2 {
		t.Fatalf("expected initial connect plus one reconnect, got %d", connects)
	}
}
