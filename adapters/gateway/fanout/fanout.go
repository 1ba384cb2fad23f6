package fanout

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/edge-iot-sim/model"
)

// Fanout delivers every snapshot read from its input channel to each
// publisher. A failing publisher is logged and the others still receive the
// snapshot.
type Fanout struct {
	in         <-chan model.Snapshot
	publishers []model.IPublisher
	logger     zerolog.Logger
}

func NewFanout(in <-chan model.Snapshot, logger zerolog.Logger, publishers ...model.IPublisher) *Fanout {
	return &Fanout{
		in:         in,
		publishers: publishers,
		logger:     logger,
	}
}

// Add registers a publisher. It must be called before Start.
func (f *Fanout) Add(p model.IPublisher) {
	f.publishers = append(f.publishers, p)
}

func (f *Fanout) Publishers() []string {
	names := make([]string, len(f.publishers))
	for i, p := range f.publishers {
		names[i] = p.Name()
	}
	return names
}

func (f *Fanout) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				f.logger.Info().Msg("Fanout: context received signal, shutting down...")
				return
			case snap, ok := <-f.in:
				if !ok {
					return
				}
				f.Dispatch(snap)
			}
		}
	}()
}

// Dispatch sends snap to every publisher and returns how many failed.
func (f *Fanout) Dispatch(snap model.Snapshot) int {
	failed := 0
	for _, p := range f.publishers {
		if err := p.SendSnapshot(snap); err != nil {
			failed++
			f.logger.Error().Err(err).Str("publisher", p.Name()).Uint64("sequence", snap.Sequence).Msg("failed to publish snapshot")
		}
	}
	return failed
}
