package ingest

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stats describes one ingested stream. Live streams are reported from
// their session; finished ones from History.
type Stats struct {
	ID         string     `json:"id"`
	Codec      string     `json:"codec"`
	SampleRate int        `json:"sample_rate"`
	Channels   int        `json:"channels"`
	Resampled  bool       `json:"resampled"`
	Volume     float32    `json:"volume"`
	Received   uint64     `json:"received_bytes"`
	Delivered  uint64     `json:"delivered_frames"`
	Live       bool       `json:"live"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	EndReason  string     `json:"end_reason,omitempty"`
}

// History keeps the final stats of recently finished streams.
type History struct {
	cache *lru.Cache[string, Stats]
}

// NewHistory creates a history holding up to size streams.
func NewHistory(size int) (*History, error) {
	cache, err := lru.New[string, Stats](size)
	if err != nil {
		return nil, err
	}
	return &History{cache: cache}, nil
}

// Add records a finished stream, evicting the oldest entry when full.
func (h *History) Add(s Stats) {
	h.cache.Add(s.ID, s)
}

// Get looks up a finished stream.
func (h *History) Get(id string) (Stats, bool) {
	return h.cache.Get(id)
}

// Len returns the number of remembered streams.
func (h *History) Len() int {
	return h.cache.Len()
}
