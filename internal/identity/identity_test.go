package identity

import "testing"

func TestHashHexDeterministic(t *testing.T) {
	a := HashHex("https://example.com/feed.xml")
	b := HashHex("https://example.com/feed.xml")
	if a != b {
		t.Fatalf("HashHex not deterministic: %q != %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(a))
	}
}

func TestFeedIDStableAcrossCalls(t *testing.T) {
	u := "https://example.com/feed.xml"
	if FeedID(u) != FeedID(u) {
		t.Fatal("FeedID is not stable for the same URL")
	}
	if FeedID(u) == FeedID(u+"x") {
		t.Fatal("FeedID collided for distinct URLs")
	}
}

func TestEntryIDDependsOnFeedAndSource(t *testing.T) {
	if EntryID("feed1", "guid1") != EntryID("feed1", "guid1") {
		t.Fatal("EntryID is not stable")
	}
	if EntryID("feed1", "guid1") == EntryID("feed2", "guid1") {
		t.Fatal("EntryID ignored feed_id")
	}
	if EntryID("feed1", "guid1") == EntryID("feed1", "guid2") {
		t.Fatal("EntryID ignored source_id")
	}
}

func TestHistoryIDVariesWithTimestamp(t *testing.T) {
	if HistoryID("feed1", "2024-01-01T00:00:00Z") == HistoryID("feed1", "2024-01-02T00:00:00Z") {
		t.Fatal("HistoryID did not vary with timestamp")
	}
}
