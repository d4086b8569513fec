package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/soundmint-backend/pkg/enums"
)

var (
	ErrTrackNotFound       = errors.New("track not found")
	ErrCollectionNotFound  = errors.New("collection not found")
	ErrConfirmationTimeout = errors.New("confirmation timed out")
	ErrTxNotFound          = errors.New("transaction not found")
)

// Writer submits transactions and waits for their confirmation. A timeout
// while waiting is reported as ErrConfirmationTimeout, never as success.
type Writer interface {
	SubmitTransaction(ctx context.Context, call Call) (TxHash, error)
	AwaitConfirmation(ctx context.Context, hash TxHash) (Receipt, error)
}

// Reader is the side-effect-free view of contract state. Implementations
// must be safe for concurrent use.
type Reader interface {
	ReadTierConfig(ctx context.Context, tier enums.Tier) (TierConfig, error)
	ReadTrack(ctx context.Context, id uint64) (TrackRecord, error)
	ReadCollection(ctx context.Context, id uint64) (CollectionRecord, error)
	CodeAt(ctx context.Context, addr Address) ([]byte, error)
	SupportsSelector(ctx context.Context, addr Address, selector [4]byte) (bool, error)
}

type RoleChecker interface {
	HasRole(ctx context.Context, account Address, role string) (bool, error)
}

// Identity answers who is acting and what they may do.
type Identity interface {
	CurrentAccount(ctx context.Context) (Address, bool)
	RoleChecker
}

// Wallet bundles the acting account with the chain clients it drives.
type Wallet struct {
	Account  Address
	Contract Address
	Writer   Writer
	Reader   Reader
	Roles    RoleChecker
}

var _ Identity = Wallet{}

func (w Wallet) CurrentAccount(context.Context) (Address, bool) {
	return w.Account, w.Account != ""
}

func (w Wallet) HasRole(ctx context.Context, account Address, role string) (bool, error) {
	if w.Roles == nil {
		return false, errors.New("role checker not configured")
	}
	return w.Roles.HasRole(ctx, account, role)
}

// Validate reports the first missing collaborator.
func (w Wallet) Validate() error {
	switch {
	case w.Account == "":
		return errors.New("wallet account required")
	case w.Contract == "":
		return errors.New("contract address required")
	case w.Writer == nil:
		return errors.New("chain writer required")
	case w.Reader == nil:
		return errors.New("chain reader required")
	case w.Roles == nil:
		return errors.New("role checker required")
	}
	return nil
}

// TxError describes a transaction that was rejected, reverted or timed out.
type TxError struct {
	Method string
	Hash   TxHash
	Reason string
	// Unconfirmed is set when the transaction was submitted but no receipt
	// was obtained, so it may still land.
	Unconfirmed bool
	Err         error
}

func (e *TxError) Error() string {
	msg := fmt.Sprintf("%s transaction", e.Method)
	if e.Hash != "" {
		msg += " " + string(e.Hash)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TxError) Unwrap() error { return e.Err }

// SubmitAndAwait runs call through w and returns its receipt. onSubmitted,
// when set, fires once the hash is known. Reverted receipts come back as *TxError.
func SubmitAndAwait(ctx context.Context, w Writer, call Call, onSubmitted func(TxHash)) (Receipt, error) {
	hash, err := w.SubmitTransaction(ctx, call)
	if err != nil {
		return Receipt{}, &TxError{Method: call.Method, Reason: "submission rejected", Err: err}
	}
	if onSubmitted != nil {
		onSubmitted(hash)
	}
	receipt, err := w.AwaitConfirmation(ctx, hash)
	if err != nil {
		return Receipt{}, &TxError{Method: call.Method, Hash: hash, Reason: "confirmation failed", Unconfirmed: true, Err: err}
	}
	if !receipt.Success {
		reason := receipt.RevertReason
		if reason == "" {
			reason = "reverted"
		}
		return receipt, &TxError{Method: call.Method, Hash: hash, Reason: reason}
	}
	return receipt, nil
}
