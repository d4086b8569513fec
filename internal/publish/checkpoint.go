package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	"github.com/angelmondragon/soundmint-backend/pkg/redis"
)

// PendingTx is a submitted transaction whose outcome is not yet known.
type PendingTx struct {
	Method     string       `json:"method"`
	Hash       chain.TxHash `json:"hash"`
	TrackIndex int          `json:"track_index,omitempty"`
}

// Checkpoint is the saga state saved after every confirmation: the plan,
// the ids the chain has assigned so far and any transaction in flight.
type Checkpoint struct {
	SessionID    string        `json:"session_id"`
	ResumedFrom  string        `json:"resumed_from,omitempty"`
	Account      chain.Address `json:"account"`
	Plan         Plan          `json:"plan"`
	CollectionID *uint64       `json:"collection_id,omitempty"`
	TrackIDs     []uint64      `json:"track_ids,omitempty"`
	Finalized    bool          `json:"finalized"`
	Pending      *PendingTx    `json:"pending,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NextStep is the first step the chain has not yet confirmed.
func (cp Checkpoint) NextStep() enums.DeployStep {
	switch {
	case cp.CollectionID == nil:
		return enums.DeployStepCreatingCollection
	case len(cp.TrackIDs) < len(cp.Plan.Tracks):
		return enums.DeployStepAddingTracks
	case !cp.Finalized:
		return enums.DeployStepFinalizing
	default:
		return enums.DeployStepDone
	}
}

// Progress is the deploy progress implied by the confirmed steps.
func (cp Checkpoint) Progress() int {
	switch cp.NextStep() {
	case enums.DeployStepCreatingCollection:
		return 0
	case enums.DeployStepAddingTracks, enums.DeployStepFinalizing:
		return trackProgress(len(cp.TrackIDs), len(cp.Plan.Tracks))
	default:
		return progressDone
	}
}

func trackProgress(done, total int) int {
	if total == 0 {
		return progressTracksDone
	}
	return progressCreateConfirmed + (progressTracksDone-progressCreateConfirmed)*done/total
}

func (cp Checkpoint) clone() Checkpoint {
	out := cp
	if cp.CollectionID != nil {
		id := *cp.CollectionID
		out.CollectionID = &id
	}
	out.TrackIDs = append([]uint64(nil), cp.TrackIDs...)
	if cp.Pending != nil {
		p := *cp.Pending
		out.Pending = &p
	}
	return out
}

// CheckpointStore persists checkpoints by session id. Claim grants one
// caller the right to resume a checkpoint until Release or expiry.
type CheckpointStore interface {
	Save(ctx context.Context, cp Checkpoint) error
	Load(ctx context.Context, sessionID string) (Checkpoint, bool, error)
	Delete(ctx context.Context, sessionID string) error
	Claim(ctx context.Context, sessionID string) (bool, error)
	Release(ctx context.Context, sessionID string) error
}

// MemoryCheckpoints keeps checkpoints for the life of the process.
type MemoryCheckpoints struct {
	mu     sync.Mutex
	byID   map[string]Checkpoint
	claims map[string]struct{}
}

func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{byID: map[string]Checkpoint{}, claims: map[string]struct{}{}}
}

func (m *MemoryCheckpoints) Claim(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.claims[sessionID]; held {
		return false, nil
	}
	m.claims[sessionID] = struct{}{}
	return true, nil
}

func (m *MemoryCheckpoints) Release(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, sessionID)
	return nil
}

func (m *MemoryCheckpoints) Save(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[cp.SessionID] = cp.clone()
	return nil
}

func (m *MemoryCheckpoints) Load(_ context.Context, sessionID string) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.byID[sessionID]
	if !ok {
		return Checkpoint{}, false, nil
	}
	return cp.clone(), true, nil
}

func (m *MemoryCheckpoints) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, sessionID)
	return nil
}

type checkpointRedis interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CheckpointKey(sessionID string) string
	ResumeClaimKey(sessionID string) string
}

// RedisCheckpoints stores checkpoints as JSON so any API replica can resume.
type RedisCheckpoints struct {
	store checkpointRedis
	ttl   time.Duration
}

func NewRedisCheckpoints(store checkpointRedis, ttl time.Duration) (*RedisCheckpoints, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("checkpoint ttl must be positive")
	}
	return &RedisCheckpoints{store: store, ttl: ttl}, nil
}

func (r *RedisCheckpoints) Save(ctx context.Context, cp Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := r.store.Set(ctx, r.store.CheckpointKey(cp.SessionID), payload, r.ttl); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.SessionID, err)
	}
	return nil
}

func (r *RedisCheckpoints) Load(ctx context.Context, sessionID string) (Checkpoint, bool, error) {
	raw, err := r.store.Get(ctx, r.store.CheckpointKey(sessionID))
	if errors.Is(err, redis.Nil) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("load checkpoint %s: %w", sessionID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("decode checkpoint %s: %w", sessionID, err)
	}
	return cp, true, nil
}

func (r *RedisCheckpoints) Delete(ctx context.Context, sessionID string) error {
	if err := r.store.Del(ctx, r.store.CheckpointKey(sessionID)); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", sessionID, err)
	}
	return nil
}

// Claim takes the resume claim for sessionID with SETNX. The claim expires
// with the checkpoint ttl.
func (r *RedisCheckpoints) Claim(ctx context.Context, sessionID string) (bool, error) {
	ok, err := r.store.SetNX(ctx, r.store.ResumeClaimKey(sessionID), sessionID, r.ttl)
	if err != nil {
		return false, fmt.Errorf("claim checkpoint %s: %w", sessionID, err)
	}
	return ok, nil
}

func (r *RedisCheckpoints) Release(ctx context.Context, sessionID string) error {
	if err := r.store.Del(ctx, r.store.ResumeClaimKey(sessionID)); err != nil {
		return fmt.Errorf("release checkpoint claim %s: %w", sessionID, err)
	}
	return nil
}
