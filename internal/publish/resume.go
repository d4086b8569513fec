package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/soundmint-backend/internal/chain"
	"github.com/angelmondragon/soundmint-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/soundmint-backend/pkg/errors"
)

// Reconcile brings a checkpoint in line with chain state before a resume so
// that nothing the chain already applied is submitted twice. It settles any
// transaction left pending by a timeout, verifies the recorded ids and scans
// for tracks that landed without being recorded.
func Reconcile(ctx context.Context, wallet chain.Wallet, cp Checkpoint, probe int) (Checkpoint, error) {
	cp = cp.clone()
	if cp.Pending != nil {
		if err := settlePending(ctx, wallet.Writer, &cp); err != nil {
			return cp, err
		}
	}
	if cp.CollectionID == nil {
		return cp, nil
	}

	rec, err := wallet.Reader.ReadCollection(ctx, *cp.CollectionID)
	if errors.Is(err, chain.ErrCollectionNotFound) {
		return cp, pkgerrors.New(pkgerrors.CodePartialDeployment, "checkpointed collection not found on chain").
			WithDetails(map[string]any{"collection_id": *cp.CollectionID})
	}
	if err != nil {
		return cp, pkgerrors.Wrap(pkgerrors.CodeChain, err, "read collection")
	}
	if rec.Owner != "" && rec.Owner != cp.Account {
		return cp, pkgerrors.New(pkgerrors.CodeForbidden, "collection belongs to another account").
			WithDetails(map[string]any{"collection_id": rec.ID})
	}

	for _, id := range cp.TrackIDs {
		track, err := wallet.Reader.ReadTrack(ctx, id)
		if err != nil {
			return cp, pkgerrors.Wrap(pkgerrors.CodeChain, err, fmt.Sprintf("read track %d", id))
		}
		if track.CollectionID != rec.ID {
			return cp, pkgerrors.New(pkgerrors.CodePartialDeployment, "checkpointed track belongs to another collection").
				WithDetails(map[string]any{"track_id": id, "collection_id": rec.ID})
		}
	}
	if !rec.Finalized {
		if err := scanTracks(ctx, wallet.Reader, &cp, probe); err != nil {
			return cp, err
		}
	}
	cp.Finalized = rec.Finalized
	return cp, nil
}

// settlePending asks the chain for the outcome of the recorded transaction.
// A receipt settles it either way; a transaction the chain never saw is
// safe to submit again. Anything else is still ambiguous.
func settlePending(ctx context.Context, w chain.Writer, cp *Checkpoint) error {
	pending := *cp.Pending
	receipt, err := w.AwaitConfirmation(ctx, pending.Hash)
	switch {
	case errors.Is(err, chain.ErrTxNotFound):
		cp.Pending = nil
		return nil
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeChain, err, "pending transaction still unconfirmed").
			WithDetails(map[string]any{"method": pending.Method, "tx_hash": pending.Hash})
	case !receipt.Success:
		cp.Pending = nil
		return nil
	}

	switch pending.Method {
	case chain.MethodCreateCollection:
		id, err := chain.CollectionIDFromReceipt(receipt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeChain, err, "settle createCollection")
		}
		cp.CollectionID = &id
	case chain.MethodAddTrack:
		id, err := chain.TrackIDFromReceipt(receipt)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeChain, err, "settle addTrack")
		}
		if pending.TrackIndex == len(cp.TrackIDs) {
			cp.TrackIDs = append(cp.TrackIDs, id)
		}
	case chain.MethodFinalizeCollection:
		cp.Finalized = true
	}
	cp.Pending = nil
	return nil
}

// scanTracks reads up to probe track ids and adopts, in plan order, tracks
// of this collection matching the next planned track. The scan starts after
// the last recorded track, or with no track recorded, probe ids before the
// end of the id space, where tracks added since the collection was created
// sit.
func scanTracks(ctx context.Context, reader chain.Reader, cp *Checkpoint, probe int) error {
	var from uint64
	if n := len(cp.TrackIDs); n > 0 {
		from = cp.TrackIDs[n-1] + 1
	} else {
		end, err := trackIDEnd(ctx, reader)
		if err != nil {
			return err
		}
		if end > uint64(probe) {
			from = end - uint64(probe)
		}
	}
	for id := from; id < from+uint64(probe) && len(cp.TrackIDs) < len(cp.Plan.Tracks); id++ {
		track, err := reader.ReadTrack(ctx, id)
		if errors.Is(err, chain.ErrTrackNotFound) {
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeChain, err, fmt.Sprintf("read track %d", id))
		}
		if track.CollectionID != *cp.CollectionID {
			continue
		}
		next := cp.Plan.Tracks[len(cp.TrackIDs)]
		if track.AudioCID == next.AudioCID && track.Title == next.Title {
			cp.TrackIDs = append(cp.TrackIDs, id)
		}
	}
	return nil
}

// trackIDEnd returns the first unassigned track id. Ids are assigned densely,
// so it doubles to an unassigned id and bisects back.
func trackIDEnd(ctx context.Context, reader chain.Reader) (uint64, error) {
	assigned := func(id uint64) (bool, error) {
		_, err := reader.ReadTrack(ctx, id)
		if errors.Is(err, chain.ErrTrackNotFound) {
			return false, nil
		}
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeChain, err, fmt.Sprintf("read track %d", id))
		}
		return true, nil
	}

	ok, err := assigned(0)
	if err != nil || !ok {
		return 0, err
	}
	lo, hi := uint64(0), uint64(1)
	for {
		ok, err := assigned(hi)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		lo, hi = hi, hi*2
	}
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		ok, err := assigned(mid)
		if err != nil {
			return 0, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil
}

// newResumedController builds a session positioned at the first step the
// chain has not confirmed. The saga continues when Deploy is called.
func newResumedController(id string, wallet chain.Wallet, deps Dependencies, cp Checkpoint) (*Controller, error) {
	c, err := NewController(id, wallet, deps)
	if err != nil {
		return nil, err
	}
	cp.ResumedFrom = cp.SessionID
	cp.SessionID = id
	cp.Account = wallet.Account

	c.stage = enums.PublishStageDeploy
	c.step = cp.NextStep()
	c.progress = cp.Progress()
	c.checkpoint = &cp
	c.draft = Draft{
		Metadata: Metadata{
			Title:       cp.Plan.Collection.Title,
			Artist:      cp.Plan.Collection.Artist,
			Genre:       cp.Plan.Collection.Genre,
			Description: cp.Plan.Collection.Description,
		},
		CoverCID: cp.Plan.Collection.CoverCID,
	}
	if len(cp.Plan.Tracks) > 0 {
		c.draft.AudioCID = cp.Plan.Tracks[0].AudioCID
	}
	if cp.CollectionID != nil {
		collectionID := *cp.CollectionID
		c.draft.CollectionID = &collectionID
	}
	return c, nil
}
