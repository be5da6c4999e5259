// Package identity computes the deterministic content-hash identifiers the
// store keys every row on. Every ID is a pure function of its inputs: the
// same URL, or the same (feed_id, source_id) pair, always hashes to the same
// id, which is what makes upserts idempotent.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashHex concatenates parts and returns the lowercase hex SHA-256 digest.
func HashHex(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FeedID derives a Feed's id from its canonical URL.
func FeedID(url string) string {
	return HashHex(url)
}

// EntryID derives an Entry's id from its parent feed and the source feed's
// own identifier for the entry (GUID, falling back to link, then title).
func EntryID(feedID, sourceID string) string {
	return HashHex(feedID, sourceID)
}

// HistoryID derives a FeedHistory row's id from its parent feed and the
// RFC-3339 timestamp the row is written at.
func HistoryID(feedID, timestamp string) string {
	return HashHex(feedID, timestamp)
}
