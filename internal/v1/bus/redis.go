// Package bus is the transport underlying the External Notifier (C9): a
// circuit-breaker-guarded Redis pub/sub client the lobby Notifier uses to
// push room-status and user-status events to the lobby service. The
// Storage Facade's Redis implementation shares the same connection pool
// through Client().
//
// This is the teacher's internal/v1/bus.Service, kept close to its original
// shape (gobreaker-wrapped publish/subscribe over go-redis) and retargeted
// from video-conferencing room/user channels to dice-room lobby channels.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/verlyn13/dicee-sub002/internal/v1/logging"
	"github.com/verlyn13/dicee-sub002/internal/v1/metrics"
)

// ActiveRoomsKey is the Redis set every process hosting a room adds its
// code to and removes it from on cleanup, so a multi-instance deployment
// can enumerate fleet-wide occupancy (the readiness check reports its size).
const ActiveRoomsKey = "diceroom:active_rooms"

// PubSubPayload is the standardized envelope for lobby notifications:
// room-status changes broadcast to anyone watching the lobby, and
// user-status changes sent to one specific user.
type PubSubPayload struct {
	RoomCode string          `json:"roomCode"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// Service wraps a Redis client with a circuit breaker so a degraded lobby
// connection never blocks the room actor's own event loop.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client, shared with
// storage.NewRedisFacade so both collaborators use one connection pool.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService dials Redis and wraps it in a circuit breaker.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	logging.Info(ctx, "connected to Redis", zap.String("addr", addr))
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// Publish broadcasts a room-status event to the lobby channel for roomCode.
func (s *Service) Publish(ctx context.Context, roomCode string, event string, payload any, senderID string) error {
	if s == nil || s.client == nil {
		return nil // single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload: %w", err)
		}

		msg := PubSubPayload{RoomCode: roomCode, Event: event, Payload: innerBytes, SenderID: senderID}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pubsub envelope: %w", err)
		}

		channel := fmt.Sprintf("diceroom:room:%s", roomCode)
		return nil, s.client.Publish(ctx, channel, data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "circuit breaker open: dropping lobby publish", zap.String("roomCode", roomCode))
			return nil // graceful degradation: drop message, don't block the room loop
		}
		logging.Error(ctx, "lobby publish failed", zap.String("roomCode", roomCode), zap.Error(err))
		return err
	}
	return nil
}

// PublishDirect sends a user-status event to one specific user's channel.
func (s *Service) PublishDirect(ctx context.Context, targetUserID string, event string, payload any, senderID string) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal inner payload for direct message: %w", err)
		}

		msg := PubSubPayload{Event: event, Payload: innerBytes, SenderID: senderID}
		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal direct message envelope: %w", err)
		}

		channel := fmt.Sprintf("diceroom:user:%s", targetUserID)
		return nil, s.client.Publish(ctx, channel, data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "circuit breaker open: dropping direct lobby message", zap.String("targetUserId", targetUserID))
			return nil
		}
		logging.Error(ctx, "lobby direct publish failed", zap.String("targetUserId", targetUserID), zap.Error(err))
		return err
	}
	return nil
}

// Subscribe starts a background goroutine delivering messages from other
// processes watching the same room's lobby channel.
func (s *Service) Subscribe(ctx context.Context, roomCode string, wg *sync.WaitGroup, handler func(PubSubPayload)) {
	if s == nil || s.client == nil {
		return
	}

	channel := fmt.Sprintf("diceroom:room:%s", roomCode)
	pubsub := s.client.Subscribe(ctx, channel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		logging.Info(ctx, "subscribed to lobby channel", zap.String("channel", channel))

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					logging.Warn(ctx, "lobby subscription channel closed", zap.String("channel", channel))
					return
				}
				var payload PubSubPayload
				if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
					logging.Error(ctx, "failed to unmarshal lobby message", zap.Error(err))
					continue
				}
				handler(payload)
			}
		}
	}()
}

// Ping verifies Redis connectivity; used by the readiness check.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// SetAdd adds a member to a Redis set, used to track active room codes
// across processes sharing one Redis instance.
func (s *Service) SetAdd(ctx context.Context, key string, member string) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.SAdd(ctx, key, member).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "circuit breaker open: skipping SetAdd", zap.String("key", key))
			return nil
		}
		logging.Error(ctx, "SetAdd failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to add to set: %w", err)
	}
	return nil
}

// SetRem removes a member from a Redis set.
func (s *Service) SetRem(ctx context.Context, key string, member string) error {
	if s == nil || s.client == nil {
		return nil
	}
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.SRem(ctx, key, member).Err()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "circuit breaker open: skipping SetRem", zap.String("key", key))
			return nil
		}
		logging.Error(ctx, "SetRem failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to remove from set: %w", err)
	}
	return nil
}

// SetMembers retrieves every member of a Redis set.
func (s *Service) SetMembers(ctx context.Context, key string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.SMembers(ctx, key).Result()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			logging.Warn(ctx, "circuit breaker open: returning empty set members", zap.String("key", key))
			return nil, nil
		}
		logging.Error(ctx, "SetMembers failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to get set members: %w", err)
	}
	return res.([]string), nil
}
