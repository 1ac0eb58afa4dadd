// Package highlight watches the per-second chat message rate and flags
// statistical spikes worth clipping later.
package highlight

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultWindow    = 30  // samples, one per second
	defaultThreshold = 2.5 // spike = count > median * threshold
)

// Detector keeps a fixed-size rolling window of per-second chat counts and
// compares each new sample against the window median.
type Detector struct {
	mu        sync.Mutex
	counts    []int
	window    int
	threshold float64
}

// NewDetector returns a detector with the default 30-sample window and 2.5x
// median threshold.
func NewDetector() *Detector {
	return &Detector{window: defaultWindow, threshold: defaultThreshold}
}

// NewDetectorWith returns a detector with explicit window and threshold,
// mainly for tests.
func NewDetectorWith(window int, threshold float64) *Detector {
	return &Detector{window: window, threshold: threshold}
}

// RecordChatCount pushes the latest one-second count and reports whether it
// spikes above the window median. Always false until the window has filled.
func (d *Detector) RecordChatCount(count int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts = append(d.counts, count)
	if len(d.counts) > d.window {
		d.counts = d.counts[1:]
	}
	if len(d.counts) < d.window {
		return false
	}

	sorted := append([]int(nil), d.counts...)
	sort.Ints(sorted)
	median := sorted[len(sorted)/2]
	if median == 0 {
		median = 1
	}
	return float64(count) > float64(median)*d.threshold
}

// Store persists detected highlights.
type Store interface {
	AddHighlight(id string, ts time.Time, reason string) error
}

// MarkerSink drops a record marker into the stream recording. Implemented by
// the scene-control client; a no-op when disconnected.
type MarkerSink interface {
	CreateMarker(label string) error
}

// Recorder couples the detector with persistence and the best-effort record
// marker. One instance is fed from the chat transport's per-second counter.
type Recorder struct {
	detector *Detector
	store    Store
	markers  MarkerSink
	onSpike  func() // optional, e.g. metrics increment
}

// NewRecorder wires a recorder. markers may be nil; onSpike may be nil.
func NewRecorder(detector *Detector, store Store, markers MarkerSink, onSpike func()) *Recorder {
	return &Recorder{detector: detector, store: store, markers: markers, onSpike: onSpike}
}

// HandleChatCount feeds one per-second count through the detector and, on a
// spike, persists a highlight and drops a record marker. Marker failures are
// ignored; a storage failure is logged and the spike is otherwise dropped.
func (r *Recorder) HandleChatCount(count int) {
	if !r.detector.RecordChatCount(count) {
		return
	}

	now := time.Now()
	reason := fmt.Sprintf("chat spike: %d msg/s", count)
	if err := r.store.AddHighlight(uuid.NewString(), now, reason); err != nil {
		log.Println("[ERR] Failed to persist highlight:", err)
	} else {
		log.Printf("[INFO] Highlight recorded (%s)", reason)
	}

	if r.markers != nil {
		_ = r.markers.CreateMarker(reason)
	}
	if r.onSpike != nil {
		r.onSpike()
	}
}
