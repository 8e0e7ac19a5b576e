package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/types"
)

// memoryRegistry keeps per-stream logs in process memory with the same
// replay-then-live contract as the redis relay. It exists to exercise that
// contract in tests without a broker; deployments get redis or pass-through.
type memoryRegistry struct {
	log     *logger.Logger
	streams repos.StreamRepo
	ceiling time.Duration

	mu   sync.Mutex
	logs map[uuid.UUID]*memoryLog
}

type memoryLog struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []Event
	closed bool
}

func newMemoryLog() *memoryLog {
	ml := &memoryLog{}
	ml.cond = sync.NewCond(&ml.mu)
	return ml
}

func NewMemoryRegistry(log *logger.Logger, streams repos.StreamRepo, wallClock time.Duration) Registry {
	if wallClock <= 0 {
		wallClock = 2 * time.Minute
	}
	return &memoryRegistry{
		log:     log.With("service", "MemoryStreamRegistry"),
		streams: streams,
		ceiling: wallClock,
		logs:    make(map[uuid.UUID]*memoryLog),
	}
}

func (r *memoryRegistry) logFor(streamID uuid.UUID) *memoryLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	ml, ok := r.logs[streamID]
	if !ok {
		ml = newMemoryLog()
		r.logs[streamID] = ml
	}
	return ml
}

func (r *memoryRegistry) Register(ctx context.Context, streamID, chatID uuid.UUID) error {
	_, err := r.streams.Create(ctx, nil, &types.StreamRecord{ID: streamID, ChatID: chatID})
	return err
}

func (r *memoryRegistry) Publish(ctx context.Context, streamID uuid.UUID, produce Producer) (<-chan Event, error) {
	feed, err := r.Attach(ctx, streamID)
	if err != nil {
		return nil, err
	}

	ml := r.logFor(streamID)
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), r.ceiling)
		defer cancel()

		sink := &memorySink{ml: ml}
		err := produce(pctx, sink)
		if sink.terminal {
			return
		}
		if err != nil {
			r.log.Warn("Producer failed without terminal event", "stream_id", streamID.String(), "error", err)
			_ = sink.Emit(pctx, Event{Type: EventError, Message: userSafeMessage(err)})
			return
		}
		_ = sink.Emit(pctx, Event{Type: EventDone})
	}()

	return feed, nil
}

func (r *memoryRegistry) Attach(ctx context.Context, streamID uuid.UUID) (<-chan Event, error) {
	ml := r.logFor(streamID)
	out := make(chan Event, 64)

	// Wake the cursor loop when the reader goes away.
	go func() {
		<-ctx.Done()
		ml.cond.Broadcast()
	}()

	go func() {
		defer close(out)
		next := 0
		for {
			ml.mu.Lock()
			for next >= len(ml.events) && !ml.closed && ctx.Err() == nil {
				ml.cond.Wait()
			}
			if ctx.Err() != nil {
				ml.mu.Unlock()
				return
			}
			if next >= len(ml.events) && ml.closed {
				ml.mu.Unlock()
				return
			}
			ev := ml.events[next]
			next++
			ml.mu.Unlock()

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}()

	return out, nil
}

func (r *memoryRegistry) Resumable() bool { return true }

func (r *memoryRegistry) Close() error { return nil }

type memorySink struct {
	ml       *memoryLog
	terminal bool
}

func (s *memorySink) Emit(_ context.Context, ev Event) error {
	s.ml.mu.Lock()
	defer s.ml.mu.Unlock()
	if s.terminal || s.ml.closed {
		return ErrStreamClosed
	}
	ev.Seq = int64(len(s.ml.events))
	s.ml.events = append(s.ml.events, ev)
	if ev.Terminal() {
		s.ml.closed = true
		s.terminal = true
	}
	s.ml.cond.Broadcast()
	return nil
}
