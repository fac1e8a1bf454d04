package stream

import (
	"testing"

	ytdlp "github.com/lrstanley/go-ytdlp"
)

func strp(s string) *string { return &s }

func entry(id, title, streamURL string) *ytdlp.ExtractedInfo {
	e := &ytdlp.ExtractedInfo{ID: id, Title: strp(title)}
	if streamURL != "" {
		e.URL = strp(streamURL)
	}
	return e
}

func TestTracksFromInfosSingle(t *testing.T) {
	infos := []*ytdlp.ExtractedInfo{entry("v1", "one", "https://cdn.test/1")}

	tracks, err := tracksFromInfos(infos, "link", false)
	if err != nil {
		t.Fatalf("tracksFromInfos: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "one" {
		t.Fatalf("tracks = %v, want the single entry", tracks)
	}
}

func TestTracksFromInfosKeepsEveryCollectionEntry(t *testing.T) {
	container := &ytdlp.ExtractedInfo{
		ID: "set1",
		Entries: []*ytdlp.ExtractedInfo{
			entry("v1", "one", "https://cdn.test/1"),
			nil,
			entry("v2", "two", "https://cdn.test/2"),
			entry("v3", "three", "https://cdn.test/3"),
		},
	}

	tracks, err := tracksFromInfos([]*ytdlp.ExtractedInfo{container}, "link", true)
	if err != nil {
		t.Fatalf("tracksFromInfos: %v", err)
	}
	want := []string{"one", "two", "three"}
	if len(tracks) != len(want) {
		t.Fatalf("got %d tracks, want %d", len(tracks), len(want))
	}
	for i, w := range want {
		if tracks[i].Title != w {
			t.Errorf("tracks[%d].Title = %q, want %q", i, tracks[i].Title, w)
		}
	}
}

func TestTracksFromInfosSkipsUnplayableInCollections(t *testing.T) {
	container := &ytdlp.ExtractedInfo{
		ID: "set1",
		Entries: []*ytdlp.ExtractedInfo{
			entry("v1", "one", ""),
			entry("v2", "two", "https://cdn.test/2"),
		},
	}

	tracks, err := tracksFromInfos([]*ytdlp.ExtractedInfo{container}, "link", true)
	if err != nil {
		t.Fatalf("tracksFromInfos: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "two" {
		t.Fatalf("tracks = %v, want only the playable entry", tracks)
	}

	// a single lookup must fail on an unplayable result instead
	if _, err := tracksFromInfos([]*ytdlp.ExtractedInfo{entry("v1", "one", "")}, "link", false); err == nil {
		t.Error("single lookup of an unplayable entry did not fail")
	}
}

func TestTracksFromInfosEmpty(t *testing.T) {
	if _, err := tracksFromInfos(nil, "link", true); err == nil {
		t.Error("empty extraction did not fail")
	}
}
