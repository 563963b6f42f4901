package domain

import "time"

// Profile holds a player's server-stored game state document
type Profile struct {
	PlayerID  int64          `json:"player_id"`
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Snapshot is the client-facing view of a profile
type Snapshot struct {
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CoinsKey is the authoritative balance field inside Profile.Data
const CoinsKey = "coins"

// AuthoritativeKeys lists top-level profile fields that only the server
// may write; client merges never set them.
var AuthoritativeKeys = []string{CoinsKey}

// IsAuthoritativeKey reports whether a top-level key is server-owned
func IsAuthoritativeKey(key string) bool {
	for _, k := range AuthoritativeKeys {
		if k == key {
			return true
		}
	}
	return false
}
