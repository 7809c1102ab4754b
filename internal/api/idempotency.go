package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader carries the client-chosen request key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader marks a response served from the idempotency store.
	ReplayedHeader = "Idempotent-Replayed"

	processingMarker = "PROCESSING"
)

// StoredResponse is a completed response kept for replay.
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyStore keeps request keys and their completed responses.
type IdempotencyStore interface {
	// Lookup reports the stored response for key, or processing=true while
	// the first request is still running. Both are zero for an unknown key.
	Lookup(ctx context.Context, key string) (resp *StoredResponse, processing bool, err error)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Complete(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RedisIdempotencyStore implements IdempotencyStore on Redis.
type RedisIdempotencyStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisIdempotencyStore constructs a store using keys under "idempotency:".
func NewRedisIdempotencyStore(client redis.Cmdable) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: "idempotency:"}
}

func (s *RedisIdempotencyStore) key(key string) string {
	return s.prefix + key
}

// Lookup implements IdempotencyStore.
func (s *RedisIdempotencyStore) Lookup(ctx context.Context, key string) (*StoredResponse, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if val == processingMarker {
		return nil, true, nil
	}
	var resp StoredResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, false, fmt.Errorf("decode stored response: %w", err)
	}
	return &resp, false, nil
}

// Reserve implements IdempotencyStore with SETNX.
func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), processingMarker, ttl).Result()
}

// Complete implements IdempotencyStore.
func (s *RedisIdempotencyStore) Complete(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), payload, ttl).Err()
}

// Release implements IdempotencyStore.
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// IdempotencyConfig tunes the middleware.
type IdempotencyConfig struct {
	// ProcessingTTL bounds how long a reservation survives a crashed request.
	ProcessingTTL time.Duration
	// ResponseTTL is how long completed responses are replayed.
	ResponseTTL time.Duration
}

// Idempotency replays the stored response of an earlier request carrying the
// same Idempotency-Key. Only 2xx responses are stored; anything else releases
// the key so the client may retry. Store failures degrade to pass-through.
func Idempotency(store IdempotencyStore, cfg IdempotencyConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.ProcessingTTL <= 0 {
		cfg.ProcessingTTL = 10 * time.Second
	}
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			stored, processing, err := store.Lookup(ctx, key)
			if err != nil {
				logger.WarnContext(ctx, "idempotency lookup failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if processing {
				writeError(w, http.StatusConflict, "request_in_progress", "a request with this idempotency key is in progress", "")
				return
			}
			if stored != nil {
				replay(w, *stored)
				return
			}

			reserved, err := store.Reserve(ctx, key, cfg.ProcessingTTL)
			if err != nil {
				logger.WarnContext(ctx, "idempotency reserve failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				writeError(w, http.StatusConflict, "request_in_progress", "a request with this idempotency key is in progress", "")
				return
			}

			// The client may be gone; the key must still be settled.
			settleCtx := context.WithoutCancel(ctx)
			completed := false
			defer func() {
				// Runs on non-2xx responses and on panics unwinding through here.
				if completed {
					return
				}
				if err := store.Release(settleCtx, key); err != nil {
					logger.WarnContext(ctx, "idempotency release failed", "error", err)
				}
			}()

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status < 200 || status >= 300 {
				return
			}
			completed = true
			resp := StoredResponse{Status: status, Body: json.RawMessage(bytes.TrimSpace(body.Bytes()))}
			if err := store.Complete(settleCtx, key, resp, cfg.ResponseTTL); err != nil {
				logger.WarnContext(ctx, "idempotency store failed", "error", err)
			}
		})
	}
}

func replay(w http.ResponseWriter, resp StoredResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
	_, _ = w.Write([]byte("\n"))
}
