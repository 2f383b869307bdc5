package command

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/explorer-points/pkg/ringlog"
)

// Interaction is the metadata kept for one suggestion generation request.
// The observation itself is never stored, only its keyed fingerprint.
type Interaction struct {
	At              time.Time
	ClassroomID     string
	RequestedBy     string
	Fingerprint     string
	ObservationLen  int
	Candidates      int
	NamedStudents   int
	SuggestionCount int
	Patterns        int
	Latency         time.Duration
}

// InteractionLog is the bounded rolling log of interactions.
type InteractionLog = ringlog.Log[Interaction]

// NewInteractionLog creates a log holding at most capacity entries.
func NewInteractionLog(capacity int) *InteractionLog {
	return ringlog.New[Interaction](capacity)
}

// Fingerprinter hashes observation text with a keyed BLAKE2b-256.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter creates a Fingerprinter. The key may be empty and must be
// at most 64 bytes.
func NewFingerprinter(key string) (*Fingerprinter, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("fingerprint key must be at most %d bytes, got %d", blake2b.Size, len(key))
	}
	return &Fingerprinter{key: []byte(key)}, nil
}

// Sum returns the hex fingerprint of text.
func (f *Fingerprinter) Sum(text string) string {
	h, err := blake2b.New256(f.key)
	if err != nil {
		// unreachable: key length is checked in NewFingerprinter
		return ""
	}
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
