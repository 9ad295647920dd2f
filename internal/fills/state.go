package fills

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"hyperbot/internal/errs"
)

const (
	MaxRecentHashes = 1000
	EvictBatch      = 100
	MaxPendingFills = 1000
)

// State is the persisted notification state. RecentFillHashes is kept in insertion order.
type State struct {
	LastProcessedTimestamp  int64      `json:"last_processed_timestamp"`
	RecentFillHashes        []string   `json:"recent_fill_hashes"`
	LastWebsocketHeartbeat  *time.Time `json:"last_websocket_heartbeat"`
	WebsocketReconnectCount int        `json:"websocket_reconnect_count"`
	LastRecoveryRun         *time.Time `json:"last_recovery_run"`
	RecoveryFillsFound      int        `json:"recovery_fills_found"`

	// PendingFills maps hashes of fills whose notification failed to their fill time.
	PendingFills map[string]int64 `json:"pending_fills,omitempty"`
}

// Tracker owns State and its file. Every mutation except heartbeats is saved before returning.
type Tracker struct {
	mu    sync.Mutex
	path  string
	state State
	seen  map[string]struct{}
	now   func() time.Time
}

// OpenTracker loads path, creating a fresh state anchored at now when the file does not exist.
// An unreadable or unparseable file is reported as errs.KindStateCorrupt.
func OpenTracker(path string, now func() time.Time) (*Tracker, error) {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{path: path, now: now, seen: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		t.state = State{LastProcessedTimestamp: now().UnixMilli(), RecentFillHashes: []string{}}
		if err := t.saveLocked(); err != nil {
			return nil, err
		}
		return t, nil
	case err != nil:
		return nil, errs.StateCorrupt("state.load", fmt.Errorf("read %s: %w", path, err))
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errs.StateCorrupt("state.load", fmt.Errorf("parse %s: %w", path, err))
	}

	hashes := state.RecentFillHashes
	state.RecentFillHashes = make([]string, 0, len(hashes))
	t.state = state
	for _, h := range hashes {
		t.addHashLocked(h)
	}
	return t, nil
}

func (t *Tracker) IsProcessed(hash string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[hash]
	return ok
}

// MarkProcessed records the hash and advances the watermark in one saved step.
func (t *Tracker) MarkProcessed(hash string, timestampMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.addHashLocked(hash)
	delete(t.state.PendingFills, hash)
	if timestampMs > t.state.LastProcessedTimestamp {
		t.state.LastProcessedTimestamp = timestampMs
	}
	return t.saveLocked()
}

// MarkFailed remembers a fill whose notification failed so retry passes look back far enough to see it,
// even after newer fills have advanced the watermark.
func (t *Tracker) MarkFailed(hash string, timestampMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[hash]; ok {
		return nil
	}
	if t.state.PendingFills == nil {
		t.state.PendingFills = make(map[string]int64)
	}
	t.state.PendingFills[hash] = timestampMs

	for len(t.state.PendingFills) > MaxPendingFills {
		oldest, oldestTs := "", int64(0)
		for h, ts := range t.state.PendingFills {
			if oldest == "" || ts < oldestTs {
				oldest, oldestTs = h, ts
			}
		}
		delete(t.state.PendingFills, oldest)
	}
	return t.saveLocked()
}

func (t *Tracker) IsPending(hash string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.state.PendingFills[hash]
	return ok
}

// RetryFrom is the earliest fill time a retry pass must cover: the watermark, or the oldest
// pending fill when that is older.
func (t *Tracker) RetryFrom() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.state.LastProcessedTimestamp
	for _, ts := range t.state.PendingFills {
		if ts < from {
			from = ts
		}
	}
	return from
}

// UpdateTimestamp never moves the watermark backwards.
func (t *Tracker) UpdateTimestamp(timestampMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timestampMs <= t.state.LastProcessedTimestamp {
		return nil
	}
	t.state.LastProcessedTimestamp = timestampMs
	return t.saveLocked()
}

// RecordHeartbeat is memory only; it reaches disk with the next saved mutation.
func (t *Tracker) RecordHeartbeat() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	t.state.LastWebsocketHeartbeat = &now
}

func (t *Tracker) RecordReconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.WebsocketReconnectCount++
	return t.saveLocked()
}

func (t *Tracker) RecordRecovery(found int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now().UTC()
	t.state.LastRecoveryRun = &now
	t.state.RecoveryFillsFound = found
	return t.saveLocked()
}

func (t *Tracker) LastProcessed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.LastProcessedTimestamp
}

func (t *Tracker) HashCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.state.RecentFillHashes)
}

func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	s.RecentFillHashes = slices.Clone(t.state.RecentFillHashes)
	s.PendingFills = maps.Clone(t.state.PendingFills)
	return s
}

func (t *Tracker) addHashLocked(hash string) {
	if _, ok := t.seen[hash]; ok {
		return
	}
	t.seen[hash] = struct{}{}
	t.state.RecentFillHashes = append(t.state.RecentFillHashes, hash)

	if len(t.state.RecentFillHashes) > MaxRecentHashes {
		for _, old := range t.state.RecentFillHashes[:EvictBatch] {
			delete(t.seen, old)
		}
		t.state.RecentFillHashes = slices.Clone(t.state.RecentFillHashes[EvictBatch:])
	}
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("Не удалось сериализовать состояние уведомлений: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("Не удалось создать каталог состояния: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".notification_state-*.tmp")
	if err != nil {
		return fmt.Errorf("Не удалось создать временный файл состояния: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("Не удалось записать состояние: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("Не удалось записать состояние: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("Не удалось записать состояние: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("Не удалось заменить файл состояния: %w", err)
	}
	return nil
}
