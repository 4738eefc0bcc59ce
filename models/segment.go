package models

// SegmentResult is produced by the coordinator and consumed by the writer.
// A nil Err means Data holds the fully decrypted segment.
type SegmentResult struct {
	Index uint64
	URI   string
	Data  []byte
	Err   error
}

func (r SegmentResult) OK() bool {
	return r.Err == nil
}

// CheckpointRecord marks the segment at Index as durably written;
// Offset is the artifact length right after that segment.
type CheckpointRecord struct {
	Index  uint64
	Offset int64
	URI    string
}
