package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/repos"
	"github.com/yungbote/chatstream-backend/internal/types"
)

// redisRegistry is the durable relay: every published event is appended to a
// per-stream redis list and fanned out over pub/sub, so any number of readers
// can replay the full prefix and continue live.
type redisRegistry struct {
	log       *logger.Logger
	rdb       *goredis.Client
	streams   repos.StreamRepo
	prefix    string
	retention time.Duration
	ceiling   time.Duration
}

func NewRedisRegistry(log *logger.Logger, streams repos.StreamRepo, addr, prefix string, retention, wallClock time.Duration) (Registry, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing redis addr")
	}
	if prefix == "" {
		prefix = "chatstream"
	}
	if retention <= 0 {
		retention = 15 * time.Minute
	}
	if wallClock <= 0 {
		wallClock = 2 * time.Minute
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisRegistry{
		log:       log.With("service", "RedisStreamRegistry"),
		rdb:       rdb,
		streams:   streams,
		prefix:    prefix,
		retention: retention,
		ceiling:   wallClock,
	}, nil
}

func (r *redisRegistry) logKey(streamID uuid.UUID) string {
	return r.prefix + ":stream:" + streamID.String() + ":log"
}

func (r *redisRegistry) channel(streamID uuid.UUID) string {
	return r.prefix + ":stream:" + streamID.String()
}

func (r *redisRegistry) Register(ctx context.Context, streamID, chatID uuid.UUID) error {
	_, err := r.streams.Create(ctx, nil, &types.StreamRecord{ID: streamID, ChatID: chatID})
	return err
}

func (r *redisRegistry) Publish(ctx context.Context, streamID uuid.UUID, produce Producer) (<-chan Event, error) {
	// The original caller is just the first attached reader.
	feed, err := r.Attach(ctx, streamID)
	if err != nil {
		return nil, err
	}

	go func() {
		// Detached from the request context: a dropped connection must not
		// stop production, only the wall-clock ceiling does.
		pctx, cancel := context.WithTimeout(context.Background(), r.ceiling)
		defer cancel()

		sink := &redisSink{reg: r, streamID: streamID}
		err := produce(pctx, sink)
		if sink.terminal {
			return
		}
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err != nil {
			r.log.Warn("Producer failed without terminal event", "stream_id", streamID.String(), "error", err)
			_ = sink.Emit(closeCtx, Event{Type: EventError, Message: userSafeMessage(err)})
			return
		}
		_ = sink.Emit(closeCtx, Event{Type: EventDone})
	}()

	return feed, nil
}

func (r *redisRegistry) Attach(ctx context.Context, streamID uuid.UUID) (<-chan Event, error) {
	sub := r.rdb.Subscribe(ctx, r.channel(streamID))

	// Ensures the subscription actually started before we read the replay
	// prefix, so no event can fall between replay and live.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		lastSeq := int64(-1)

		raws, err := r.rdb.LRange(ctx, r.logKey(streamID), 0, -1).Result()
		if err != nil {
			r.log.Warn("Stream replay failed", "stream_id", streamID.String(), "error", err)
			return
		}
		for _, raw := range raws {
			var ev Event
			if err := json.Unmarshal([]byte(raw), &ev); err != nil {
				r.log.Warn("Bad stream log payload", "stream_id", streamID.String(), "error", err)
				continue
			}
			lastSeq = ev.Seq
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.Terminal() {
				return
			}
		}

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					r.log.Warn("Bad stream pubsub payload", "stream_id", streamID.String(), "error", err)
					continue
				}
				// Events seen during replay arrive again over pub/sub.
				if ev.Seq <= lastSeq {
					continue
				}
				lastSeq = ev.Seq
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				if ev.Terminal() {
					return
				}
			}
		}
	}()

	return out, nil
}

func (r *redisRegistry) Resumable() bool { return true }

func (r *redisRegistry) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

// redisSink appends and fans out under a single producer; seq order in the
// list is therefore identical to publish order.
type redisSink struct {
	reg      *redisRegistry
	streamID uuid.UUID
	seq      int64
	terminal bool
}

func (s *redisSink) Emit(ctx context.Context, ev Event) error {
	if s.terminal {
		return ErrStreamClosed
	}
	ev.Seq = s.seq
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pipe := s.reg.rdb.TxPipeline()
	pipe.RPush(ctx, s.reg.logKey(s.streamID), raw)
	pipe.Publish(ctx, s.reg.channel(s.streamID), raw)
	if ev.Terminal() {
		// Closed logs stay readable for last-chance reattachment, then expire.
		pipe.Expire(ctx, s.reg.logKey(s.streamID), s.reg.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	s.seq++
	if ev.Terminal() {
		s.terminal = true
	}
	return nil
}
