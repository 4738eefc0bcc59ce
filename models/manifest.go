package models

// SegmentRef points at one fetchable chunk of the stream.
// Index is the 0-based position in the playlist and the only ordering key
// used downstream.
type SegmentRef struct {
	Index    uint64  `json:"index"`
	Sequence uint64  `json:"sequence"` // media sequence number, used for IV derivation
	URI      string  `json:"uri"`
	Duration float64 `json:"duration"`
	Init     bool    `json:"init,omitempty"` // EXT-X-MAP initialization section
	Clear    bool    `json:"clear,omitempty"` // served unencrypted even when the stream has a key
}

type KeyRef struct {
	Method string `json:"method"`
	URI    string `json:"uri"`
	IV     []byte `json:"iv,omitempty"`
}

// StreamManifest is a parsed media playlist. It is never mutated after parsing.
type StreamManifest struct {
	URI            string       `json:"uri"`
	Segments       []SegmentRef `json:"segments"`
	Key            *KeyRef      `json:"key,omitempty"`
	MediaSequence  uint64       `json:"media_sequence"`
	TargetDuration float64      `json:"target_duration"`
	Duration       float64      `json:"duration"`
	Closed         bool         `json:"closed"`
}

func (m *StreamManifest) IsEncrypted() bool {
	return m.Key != nil
}

// Pending returns the segments strictly after the given index.
// A nil index means nothing was completed yet.
func (m *StreamManifest) Pending(lastCompleted *uint64) []SegmentRef {
	if lastCompleted == nil {
		return m.Segments
	}
	start := *lastCompleted + 1
	if start >= uint64(len(m.Segments)) {
		return nil
	}
	return m.Segments[start:]
}
