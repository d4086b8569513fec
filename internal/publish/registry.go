package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
)

// WalletSource builds the chain wallet an account acts through.
type WalletSource interface {
	Wallet(account chain.Address) chain.Wallet
}

// Registry holds the in-process publish sessions keyed by session id.
type Registry struct {
	wallets WalletSource
	deps    Dependencies
	ttl     time.Duration

	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewRegistry(wallets WalletSource, deps Dependencies, ttl time.Duration) (*Registry, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet source required")
	}
	deps, err := deps.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Registry{
		wallets:  wallets,
		deps:     deps,
		ttl:      ttl,
		sessions: map[string]*Controller{},
	}, nil
}

// Create opens a new session acting as account.
func (r *Registry) Create(ctx context.Context, account chain.Address) (*Controller, error) {
	c, err := NewController(uuid.NewString(), r.wallets.Wallet(account), r.deps)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create publish session")
	}
	r.add(c)
	r.deps.Logger.Info(c.logCtx(ctx), "publish session opened")
	return c, nil
}

// Get returns the session owned by account.
func (r *Registry) Get(id string, account chain.Address) (*Controller, error) {
	r.mu.RLock()
	c, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || c.Account() != account {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "publish session not found")
	}
	return c, nil
}

// Resume reconciles the checkpoint of a failed session with the chain and
// opens a new session positioned at the first unconfirmed step. The failed
// session stays in its error stage.
func (r *Registry) Resume(ctx context.Context, sessionID string, account chain.Address) (*Controller, error) {
	r.mu.RLock()
	prev, live := r.sessions[sessionID]
	r.mu.RUnlock()
	if live {
		if prev.Account() != account {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "publish session not found")
		}
		if !prev.Snapshot().Terminal() {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "session has not failed")
		}
	}

	cp, ok, err := r.deps.Checkpoints.Load(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deploy checkpoint")
	}
	if !ok || cp.Account != account {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no deploy checkpoint for session")
	}

	claimed, err := r.deps.Checkpoints.Claim(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim deploy checkpoint")
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "session is already being resumed")
	}
	// The claim is kept once a resumed session exists; the checkpoint it
	// guards is deleted below.
	c, err := r.resumeClaimed(ctx, account, cp)
	if err != nil {
		if rerr := r.deps.Checkpoints.Release(ctx, sessionID); rerr != nil {
			r.deps.Logger.Warn(r.deps.Logger.WithField(ctx, "error", rerr.Error()), "failed to release checkpoint claim")
		}
		return nil, err
	}
	if err := r.deps.Checkpoints.Delete(ctx, sessionID); err != nil {
		r.deps.Logger.Warn(r.deps.Logger.WithField(ctx, "error", err.Error()), "failed to delete superseded checkpoint")
	}
	r.add(c)

	fields := map[string]any{
		"resumed_from": sessionID,
		"next_step":    c.checkpoint.NextStep().String(),
	}
	if c.checkpoint.CollectionID != nil {
		fields["collection_id"] = *c.checkpoint.CollectionID
	}
	r.deps.Logger.Info(r.deps.Logger.WithFields(c.logCtx(ctx), fields), "publish session resumed")
	return c, nil
}

func (r *Registry) resumeClaimed(ctx context.Context, account chain.Address, cp Checkpoint) (*Controller, error) {
	wallet := r.wallets.Wallet(account)
	reconciled, err := Reconcile(ctx, wallet, cp, r.deps.ReconcileProbe)
	if err != nil {
		return nil, err
	}
	c, err := newResumedController(uuid.NewString(), wallet, r.deps, reconciled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resume publish session")
	}
	if err := r.deps.Checkpoints.Save(ctx, *c.checkpoint); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save deploy checkpoint")
	}
	return c, nil
}

// Sweep drops idle sessions older than the registry ttl. Sessions that have
// not reached a terminal stage are cancelled first.
func (r *Registry) Sweep(ctx context.Context) int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.deps.Now().UTC().Add(-r.ttl)

	r.mu.Lock()
	var expired []*Controller
	for id, c := range r.sessions {
		idle, last := c.Idle()
		if idle && last.Before(cutoff) {
			expired = append(expired, c)
			delete(r.sessions, id)
		}
	}
	active := len(r.sessions)
	r.mu.Unlock()

	for _, c := range expired {
		if !c.Snapshot().Terminal() {
			_, _ = c.Cancel(ctx)
		}
	}
	r.deps.Metrics.SetActiveSessions(active)
	return len(expired)
}

// Len returns the number of sessions held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) add(c *Controller) {
	r.mu.Lock()
	r.sessions[c.ID()] = c
	n := len(r.sessions)
	r.mu.Unlock()
	r.deps.Metrics.SetActiveSessions(n)
}
