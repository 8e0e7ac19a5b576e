package stream

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/types"
)

var (
	// ErrNotResumable is returned by Attach when the registry runs without a
	// durable relay.
	ErrNotResumable = errors.New("stream relay not configured")
	// ErrStreamClosed is returned when publishing to an already-closed stream.
	ErrStreamClosed = errors.New("stream closed")
)

// Sink is the handle producers (the generation driver and its tools) use to
// push events into a stream.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Producer runs one generation attempt. It must emit exactly one terminal
// event unless it returns an error, in which case the registry closes the
// stream with an error event on its behalf.
type Producer func(ctx context.Context, sink Sink) error

// Registry decouples producing a stream's event sequence from consuming it.
// Implementations are selected once at startup: a redis-backed durable relay
// when REDIS_ADDR is configured, otherwise single-reader pass-through.
type Registry interface {
	// Register persists the StreamRecord before generation starts.
	Register(ctx context.Context, streamID, chatID uuid.UUID) error
	// Publish starts produce in its own goroutine, detached from ctx so a
	// dropped client never cancels production, and returns the original
	// caller's ordered feed.
	Publish(ctx context.Context, streamID uuid.UUID, produce Producer) (<-chan Event, error)
	// Attach replays every already-logged event in order, then continues
	// live until a terminal event.
	Attach(ctx context.Context, streamID uuid.UUID) (<-chan Event, error)
	Resumable() bool
	Close() error
}

// passThroughRegistry delivers the producer's events straight to the single
// original caller. No replay, no second readers; a deliberate degradation,
// not an error.
type passThroughRegistry struct {
	log     *logger.Logger
	streams repos.StreamRepo
	ceiling time.Duration
}

func NewPassThroughRegistry(log *logger.Logger, streams repos.StreamRepo, wallClock time.Duration) Registry {
	if wallClock <= 0 {
		wallClock = 2 * time.Minute
	}
	return &passThroughRegistry{
		log:     log.With("service", "PassThroughStreamRegistry"),
		streams: streams,
		ceiling: wallClock,
	}
}

func (r *passThroughRegistry) Register(ctx context.Context, streamID, chatID uuid.UUID) error {
	_, err := r.streams.Create(ctx, nil, &types.StreamRecord{ID: streamID, ChatID: chatID})
	return err
}

func (r *passThroughRegistry) Publish(ctx context.Context, streamID uuid.UUID, produce Producer) (<-chan Event, error) {
	out := make(chan Event, 64)
	sink := &chanSink{ch: out}

	go func() {
		defer close(out)
		pctx, cancel := context.WithTimeout(context.Background(), r.ceiling)
		defer cancel()

		err := produce(pctx, sink)
		if sink.terminal {
			return
		}
		// The ceiling context may already be spent; the terminal event gets
		// its own short window so the reader still sees how the stream ended.
		tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer tcancel()
		if err != nil {
			r.log.Warn("Producer failed without terminal event", "stream_id", streamID.String(), "error", err)
			_ = sink.Emit(tctx, Event{Type: EventError, Message: userSafeMessage(err)})
			return
		}
		_ = sink.Emit(tctx, Event{Type: EventDone})
	}()

	return out, nil
}

func (r *passThroughRegistry) Attach(ctx context.Context, streamID uuid.UUID) (<-chan Event, error) {
	return nil, ErrNotResumable
}

func (r *passThroughRegistry) Resumable() bool { return false }

func (r *passThroughRegistry) Close() error { return nil }

// chanSink orders events with a local counter and forwards them to one
// reader. Sends block until the reader takes the event or ctx ends, so a
// briefly-stalled reader still receives the full sequence; a vanished reader
// stalls the producer only until the wall-clock ceiling.
type chanSink struct {
	ch       chan Event
	seq      int64
	terminal bool
}

func (s *chanSink) Emit(ctx context.Context, ev Event) error {
	if s.terminal {
		return ErrStreamClosed
	}
	ev.Seq = s.seq
	s.seq++
	if ev.Terminal() {
		s.terminal = true
	}
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// userSafeMessage keeps backend internals out of client-visible error events.
func userSafeMessage(err error) string {
	if err == nil {
		return "generation failed"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "generation timed out"
	}
	return "the model provider is unavailable right now, please try again"
}
