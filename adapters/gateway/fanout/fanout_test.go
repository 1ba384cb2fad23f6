package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

type fakePublisher struct {
	name string
	err  error

	mu   sync.Mutex
	seqs []uint64
}

func (p *fakePublisher) Name() string { return p.name }

func (p *fakePublisher) SendSnapshot(s model.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seqs = append(p.seqs, s.Sequence)
	return p.err
}

func (p *fakePublisher) received() []uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint64(nil), p.seqs...)
}

func TestDispatchSkipsFailingPublisher(t *testing.T) {
	broken := &fakePublisher{name: "broken", err: errors.New("broker down")}
	ok := &fakePublisher{name: "ok"}
	f := NewFanout(nil, zerolog.Nop(), broken, ok)

	if failed := f.Dispatch(model.Snapshot{Sequence: 3}); failed != 1 {
		t.Fatalf("expected 1 failure, got %d", failed)
	}
	if got := ok.received(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("healthy publisher did not receive the snapshot: %v", got)
	}
}

func TestFanoutDeliversInOrder(t *testing.T) {
	in := make(chan model.Snapshot, 4)
	p := &fakePublisher{name: "display"}
	f := NewFanout(in, zerolog.Nop())
	f.Add(p)
	if names := f.Publishers(); len(names) != 1 || names[0] != "display" {
		t.Fatalf("unexpected publishers %v", names)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	f.Start(ctx, wg)

	for i := uint64(1); i <= 3; i++ {
		in <- model.Snapshot{Sequence: i}
	}

	deadline := time.Now().Add(time.Second)
	for len(p.received()) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 deliveries, got %v", p.received())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	wg.Wait()

	for i, seq := range p.received() {
		if seq != uint64(i+1) {
			t.Fatalf("out of order delivery %v", p.received())
		}
	}
}
