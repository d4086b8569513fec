package publish

import (
	"sync"
	"time"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
)

// Deploy progress weights within the deploy stage.
const (
	progressCreateSubmitted = 10
	progressCreateConfirmed = 30
	progressTracksDone      = 60
	progressFinalizeSent    = 90
	progressDone            = 100
)

// Next actions surfaced with every failure.
const (
	ActionFixFields        = "fix the highlighted fields"
	ActionRetryUpload      = "retry the upload"
	ActionReselectFile     = "select a different file"
	ActionRetryTransaction = "retry the transaction; run the contract diagnostics if it keeps failing"
	ActionResume           = "resume the deployment or contact support with the collection id"
	ActionStartOver        = "start a new publish session"
)

// StageError describes why a session failed and what the publisher can do.
type StageError struct {
	Stage        enums.PublishStage `json:"stage"`
	DeployStep   enums.DeployStep   `json:"deploy_step,omitempty"`
	Code         pkgerrors.Code     `json:"code"`
	Reason       string             `json:"reason"`
	NextAction   string             `json:"next_action"`
	Retryable    bool               `json:"retryable"`
	CollectionID *uint64            `json:"collection_id,omitempty"`
	TxHash       chain.TxHash       `json:"tx_hash,omitempty"`
}

// FailedStep names the deploy step that failed, or the stage when the
// failure came before the deploy.
func (e StageError) FailedStep() string {
	if e.DeployStep != enums.DeployStepNone {
		return e.DeployStep.String()
	}
	return e.Stage.String()
}

// Snapshot is the observable state of a session.
type Snapshot struct {
	SessionID    string             `json:"session_id"`
	Account      chain.Address      `json:"account"`
	Stage        enums.PublishStage `json:"stage"`
	DeployStep   enums.DeployStep   `json:"deploy_step,omitempty"`
	Progress     int                `json:"progress"`
	AudioCID     string             `json:"audio_cid,omitempty"`
	CoverCID     string             `json:"cover_cid,omitempty"`
	CollectionID *uint64            `json:"collection_id,omitempty"`
	TrackIDs     []uint64           `json:"track_ids,omitempty"`
	Error        *StageError        `json:"error,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Terminal reports whether no further snapshots will follow.
func (s Snapshot) Terminal() bool {
	return s.Stage.IsTerminal()
}

const subscriberBuffer = 16

// hub fans snapshots out to subscribers. A slow subscriber loses
// intermediate snapshots but always receives the latest one.
type hub struct {
	mu     sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
	closed bool
}

func (h *hub) subscribe(current Snapshot) (<-chan Snapshot, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Snapshot, subscriberBuffer)
	ch <- current
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	if h.subs == nil {
		h.subs = map[int]chan Snapshot{}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

func (h *hub) publish(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subs {
		deliver(ch, snap)
	}
	if snap.Terminal() {
		for id, ch := range h.subs {
			close(ch)
			delete(h.subs, id)
		}
		h.closed = true
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func deliver(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
