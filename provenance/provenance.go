// Package provenance computes stable, content-addressed fingerprints for
// tools, parameters, and inputs, and maintains the job-scoped dedup list
// required by spec.md invariant 2 (distinct (tool, version,
// params_fingerprint) appears at most once in the top-level provenance
// list, in order of first appearance).
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/basui01/reelscope/types"
)

// HashFile computes the SHA-256 of a file's contents, grounded on the
// original implementation's utils/hashing.sha256_file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintParams computes a stable hash of a JSON-serializable params
// structure. Map keys are sorted by json.Marshal for Go maps, so the
// result is deterministic across runs with identical parameter values.
func FingerprintParams(params any) (string, error) {
	// A single marshal is the canonical form: Go's encoding/json already
	// sorts map keys, and struct fields keep their declaration order.
	b, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes hashes an arbitrary byte slice.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashString hashes a string.
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// New builds a Provenance entry for a tool invocation at the current time.
func New(tool, version, ckpt, paramsHash string) types.Provenance {
	return types.Provenance{
		Tool:        tool,
		Version:     version,
		ModelCkptID: ckpt,
		ParamsHash:  paramsHash,
		Timestamp:   time.Now().UTC(),
	}
}

// Skipped builds a Provenance stub for a detector invocation that the
// fallback ladder (or an input-defect/internal classification) skipped.
func Skipped(tool, version, reason string) types.Provenance {
	return types.Provenance{
		Tool:          tool,
		Version:       version,
		Timestamp:     time.Now().UTC(),
		SkippedReason: reason,
	}
}

// Ledger accumulates the job-scoped, deduplicated, insertion-ordered
// provenance list for the final bundle.
type Ledger struct {
	mu      sync.Mutex
	seen    map[[3]string]struct{}
	entries []types.Provenance
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[[3]string]struct{})}
}

// Record appends p to the ledger unless its (tool, version, params_hash)
// key has already been recorded, preserving insertion order of first
// appearance.
func (l *Ledger) Record(p types.Provenance) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := p.Key()
	if _, ok := l.seen[key]; ok {
		return
	}
	l.seen[key] = struct{}{}
	l.entries = append(l.entries, p)
}

// Entries returns the accumulated, deduplicated provenance list.
func (l *Ledger) Entries() []types.Provenance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Provenance, len(l.entries))
	copy(out, l.entries)
	return out
}

// SortedKeys is a test/debug helper returning the dedup keys seen so far
// in lexical order (not insertion order).
func (l *Ledger) SortedKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.seen))
	for k := range l.seen {
		keys = append(keys, k[0]+"|"+k[1]+"|"+k[2])
	}
	sort.Strings(keys)
	return keys
}
