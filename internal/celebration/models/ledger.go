package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GenesisHash is the previous_hash of the first ledger entry.
const GenesisHash = "genesis"

// ErrLedgerTampered is returned when the hash chain or the status fold
// does not check out.
var ErrLedgerTampered = errors.New("celebration ledger tampered")

// LedgerEntry is one transition event. Entries are append-only.
type LedgerEntry struct {
	Sequence       int               `json:"sequence"`
	PreviousStatus *Status           `json:"previous_status"`
	NewStatus      Status            `json:"new_status"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	PreviousHash   string            `json:"previous_hash"`
	Hash           string            `json:"hash"`
}

// hashInput is the canonical form that is hashed. Map keys are emitted
// sorted by encoding/json.
type hashInput struct {
	Sequence       int               `json:"sequence"`
	PreviousStatus *Status           `json:"previous_status"`
	NewStatus      Status            `json:"new_status"`
	Timestamp      string            `json:"timestamp"`
	Metadata       map[string]string `json:"metadata"`
	PreviousHash   string            `json:"previous_hash"`
}

func (e LedgerEntry) computeHash() string {
	raw, _ := json.Marshal(hashInput{
		Sequence:       e.Sequence,
		PreviousStatus: e.PreviousStatus,
		NewStatus:      e.NewStatus,
		Timestamp:      e.Timestamp.UTC().Format(time.RFC3339Nano),
		Metadata:       e.Metadata,
		PreviousHash:   e.PreviousHash,
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Ledger is the ordered transition log of one celebration.
type Ledger []LedgerEntry

// Head returns the hash new entries chain from.
func (l Ledger) Head() string {
	if len(l) == 0 {
		return GenesisHash
	}
	return l[len(l)-1].Hash
}

// LastSequence returns the sequence of the tail entry, or 0 when empty.
func (l Ledger) LastSequence() int {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].Sequence
}

// Append returns a new ledger with one more entry. The receiver is not
// modified. Timestamps are stored at microsecond precision so they survive a
// database round trip without breaking the chain.
func (l Ledger) Append(to Status, at time.Time, metadata map[string]string) Ledger {
	entry := LedgerEntry{
		Sequence:     l.LastSequence() + 1,
		NewStatus:    to,
		Timestamp:    at.UTC().Truncate(time.Microsecond),
		Metadata:     copyMetadata(metadata),
		PreviousHash: l.Head(),
	}
	if len(l) > 0 {
		prev := l[len(l)-1].NewStatus
		entry.PreviousStatus = &prev
	}
	entry.Hash = entry.computeHash()

	next := make(Ledger, len(l), len(l)+1)
	copy(next, l)
	return append(next, entry)
}

// Fold replays the ledger and returns the status it implies.
func (l Ledger) Fold() (Status, error) {
	var state Status
	for i, e := range l {
		next, err := apply(state, e)
		if err != nil {
			return "", fmt.Errorf("entry %d: %w", i+1, err)
		}
		state = next
	}
	if state == "" {
		return "", fmt.Errorf("%w: empty ledger", ErrLedgerTampered)
	}
	return state, nil
}

func apply(state Status, e LedgerEntry) (Status, error) {
	if state == "" {
		if e.PreviousStatus != nil || e.NewStatus != StatusActive {
			return "", fmt.Errorf("%w: first entry must open as active", ErrLedgerTampered)
		}
		return StatusActive, nil
	}
	if e.PreviousStatus == nil || *e.PreviousStatus != state {
		return "", fmt.Errorf("%w: previous status does not match fold", ErrLedgerTampered)
	}
	if !state.CanTransitionTo(e.NewStatus) {
		return "", fmt.Errorf("%w: illegal edge %s -> %s", ErrLedgerTampered, state, e.NewStatus)
	}
	return e.NewStatus, nil
}

// Verify recomputes the hash chain and the status fold.
func (l Ledger) Verify() error {
	prevHash := GenesisHash
	for i, e := range l {
		if e.Sequence != i+1 {
			return fmt.Errorf("%w: sequence gap at entry %d", ErrLedgerTampered, i+1)
		}
		if e.PreviousHash != prevHash {
			return fmt.Errorf("%w: broken chain at entry %d", ErrLedgerTampered, i+1)
		}
		if e.computeHash() != e.Hash {
			return fmt.Errorf("%w: hash mismatch at entry %d", ErrLedgerTampered, i+1)
		}
		prevHash = e.Hash
	}
	_, err := l.Fold()
	return err
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
