package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"memory-filter/internal/domain"
)

// ValvesStore guarda los ajustes mutables del filtro. Get se llama en cada
// inlet/outlet; ante un error devuelve los valores iniciales junto al error.
type ValvesStore interface {
	Get(ctx context.Context) (domain.Valves, error)
	Update(ctx context.Context, valves domain.Valves) error
}

type memoryValvesStore struct {
	mu     sync.RWMutex
	valves domain.Valves
}

func NewMemoryValvesStore(initial domain.Valves) ValvesStore {
	return &memoryValvesStore{valves: initial}
}

func (s *memoryValvesStore) Get(context.Context) (domain.Valves, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.valves, nil
}

func (s *memoryValvesStore) Update(_ context.Context, valves domain.Valves) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valves = valves
	return nil
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type redisValvesStore struct {
	client   redisKV
	key      string
	fallback domain.Valves
}

// NewRedisValvesStore comparte los ajustes entre réplicas del filtro.
// Mientras no haya nada guardado se usan los valores iniciales.
func NewRedisValvesStore(client *redis.Client, initial domain.Valves) ValvesStore {
	if client == nil {
		return nil
	}
	return &redisValvesStore{
		client:   client,
		key:      "memory-filter:valves",
		fallback: initial,
	}
}

func (s *redisValvesStore) Get(ctx context.Context) (domain.Valves, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.fallback, nil
	}
	if err != nil {
		return s.fallback, err
	}
	var valves domain.Valves
	if err := json.Unmarshal(raw, &valves); err != nil {
		return s.fallback, err
	}
	return valves, nil
}

func (s *redisValvesStore) Update(ctx context.Context, valves domain.Valves) error {
	raw, err := json.Marshal(valves)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.key, raw, 0).Err()
}
