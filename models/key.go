package models

type DecryptionKey struct {
	Key    []byte `json:"key"`    // raw AES-128 key bytes
	IV     []byte `json:"iv"`     // explicit IV, nil when derived from the media sequence
	Method string `json:"method"` // e.g., "AES-128"
}
