package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintParams_Deterministic(t *testing.T) {
	params := map[string]any{"tile_size": 512, "stride": 256}

	h1, err := FingerprintParams(params)
	require.NoError(t, err)
	h2, err := FingerprintParams(params)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
}

func TestFingerprintParams_DiffersOnChange(t *testing.T) {
	h1, err := FingerprintParams(map[string]any{"stride": 256})
	require.NoError(t, err)
	h2, err := FingerprintParams(map[string]any{"stride": 128})
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestLedger_DedupByToolVersionParams(t *testing.T) {
	l := NewLedger()

	p1 := New("yolo", "1.0.0", "ckpt-a", "hash1")
	p2 := New("yolo", "1.0.0", "ckpt-a", "hash1") // duplicate key, later timestamp
	p3 := New("yolo", "1.0.0", "ckpt-a", "hash2") // different params hash

	l.Record(p1)
	l.Record(p2)
	l.Record(p3)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, p1.Timestamp, entries[0].Timestamp)
	assert.Equal(t, "hash2", entries[1].ParamsHash)
}

func TestLedger_InsertionOrder(t *testing.T) {
	l := NewLedger()
	l.Record(New("ocr", "2.0", "", "h1"))
	l.Record(New("yolo", "1.0", "", "h2"))
	l.Record(New("audio", "3.0", "", "h3"))

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "ocr", entries[0].Tool)
	assert.Equal(t, "yolo", entries[1].Tool)
	assert.Equal(t, "audio", entries[2].Tool)
}
