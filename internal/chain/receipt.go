package chain

import (
	"fmt"
	"strconv"
)

const (
	EventCollectionCreated   = "CollectionCreated"
	EventTrackAdded          = "TrackAdded"
	EventCollectionFinalized = "CollectionFinalized"
)

// Event is a decoded contract log.
type Event struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args"`
}

// Receipt is the confirmed outcome of a transaction.
type Receipt struct {
	TxHash       TxHash  `json:"tx_hash"`
	Success      bool    `json:"success"`
	BlockNumber  uint64  `json:"block_number"`
	RevertReason string  `json:"revert_reason,omitempty"`
	Events       []Event `json:"events,omitempty"`
}

// EventArg returns the named argument of the first event called name.
func (r Receipt) EventArg(name, arg string) (string, bool) {
	for _, ev := range r.Events {
		if ev.Name != name {
			continue
		}
		v, ok := ev.Args[arg]
		return v, ok
	}
	return "", false
}

// CollectionIDFromReceipt extracts the id the contract assigned in CollectionCreated.
func CollectionIDFromReceipt(r Receipt) (uint64, error) {
	return uintEventArg(r, EventCollectionCreated, "collectionId")
}

// TrackIDFromReceipt extracts the id the contract assigned in TrackAdded.
func TrackIDFromReceipt(r Receipt) (uint64, error) {
	return uintEventArg(r, EventTrackAdded, "trackId")
}

func uintEventArg(r Receipt, event, arg string) (uint64, error) {
	raw, ok := r.EventArg(event, arg)
	if !ok {
		return 0, fmt.Errorf("receipt %s has no %s.%s", r.TxHash, event, arg)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("receipt %s: invalid %s.%s %q: %w", r.TxHash, event, arg, raw, err)
	}
	return v, nil
}
