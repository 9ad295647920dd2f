package fills

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hyperbot/internal/exchange"
	"hyperbot/internal/logger"
	"hyperbot/internal/models"
)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *fakeNotifier) Send(_ context.Context, _ int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, text)
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

type fakeInfo struct {
	fills    []models.Fill
	byTime   []models.Fill
	err      error
	lastFrom time.Time
}

func (f *fakeInfo) AllMids(context.Context) (map[string]float64, error) { return nil, nil }

func (f *fakeInfo) AssetMeta(context.Context, string) (models.AssetMeta, error) {
	return models.AssetMeta{}, nil
}

func (f *fakeInfo) UserFills(context.Context) ([]models.Fill, error) {
	return f.fills, f.err
}

func (f *fakeInfo) UserFillsByTime(_ context.Context, start time.Time) ([]models.Fill, error) {
	f.lastFrom = start
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Fill
	for _, fill := range f.byTime {
		if fill.Time >= start.UnixMilli() {
			out = append(out, fill)
		}
	}
	return out, nil
}

func (f *fakeInfo) OpenOrders(context.Context) ([]models.OpenOrder, error) { return nil, nil }

type fakeStream struct {
	mu    sync.Mutex
	ch    chan exchange.Event
	calls int
}

func (s *fakeStream) SubscribeUserFills(context.Context, string) (<-chan exchange.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.ch, nil
}

func (s *fakeStream) Close() error { return nil }

func newTestMonitor(t *testing.T, info *fakeInfo, notifier *fakeNotifier) (*Monitor, *Tracker, string) {
	t.Helper()
	tracker, path := openTestTracker(t)
	stream := &fakeStream{ch: make(chan exchange.Event, 8)}
	m := NewMonitor(Options{User: "0xuser", ChatID: 42, PollInterval: time.Hour}, tracker, info, stream, notifier, logger.Nop())
	return m, tracker, path
}

func after(ms int64, coin string, tid int64) models.Fill {
	return testFill(100+tid, tid, t0.UnixMilli()+ms, coin)
}

func TestProcessFill_Idempotent(t *testing.T) {
	notifier := &fakeNotifier{}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{}, notifier)
	f := after(1000, "BTC", 1)

	require.NoError(t, m.ProcessFill(context.Background(), f))
	require.NoError(t, m.ProcessFill(context.Background(), f))

	assert.Len(t, notifier.sent(), 1)
	assert.Equal(t, 1, tracker.HashCount())
	assert.Equal(t, f.Time, tracker.LastProcessed())
}

func TestProcessFill_ConcurrentCallersNotifyOnce(t *testing.T) {
	notifier := &fakeNotifier{}
	m, _, _ := newTestMonitor(t, &fakeInfo{}, notifier)
	f := after(1000, "BTC", 1)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.ProcessFill(context.Background(), f)
		}()
	}
	wg.Wait()

	assert.Len(t, notifier.sent(), 1)
}

func TestProcessFill_NotificationFailureLeavesFillUnrecorded(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("telegram: 502")}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{}, notifier)
	f := after(1000, "BTC", 1)
	watermark := tracker.LastProcessed()

	require.Error(t, m.ProcessFill(context.Background(), f))
	assert.False(t, tracker.IsProcessed(FillHash(f)))
	assert.Equal(t, watermark, tracker.LastProcessed())

	notifier.err = nil
	require.NoError(t, m.ProcessFill(context.Background(), f))
	assert.True(t, tracker.IsProcessed(FillHash(f)))
}

func TestRecoverOnStartup_BatchesLargeBacklog(t *testing.T) {
	var fills []models.Fill
	for i := int64(8); i >= 1; i-- {
		coin := "BTC"
		if i%2 == 0 {
			coin = "ETH"
		}
		fills = append(fills, after(i*1000, coin, i))
	}
	fills = append(fills, after(-1000, "BTC", 90), after(-2000, "BTC", 91))

	notifier := &fakeNotifier{}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{fills: fills}, notifier)

	delivered, err := m.RecoverOnStartup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, delivered)
	msgs := notifier.sent()
	require.Len(t, msgs, 1, "a backlog above the threshold is summarised in one message")
	assert.Contains(t, msgs[0], "8 fills recovered")
	assert.Contains(t, msgs[0], "BTC")
	assert.Contains(t, msgs[0], "ETH")

	assert.Equal(t, 8, tracker.HashCount())
	assert.Equal(t, t0.UnixMilli()+8000, tracker.LastProcessed())
	snap := tracker.Snapshot()
	assert.Equal(t, 8, snap.RecoveryFillsFound)
	assert.NotNil(t, snap.LastRecoveryRun)
}

func TestRecoverOnStartup_SmallBacklogOldestFirst(t *testing.T) {
	fills := []models.Fill{after(3000, "SOL", 3), after(2000, "ETH", 2), after(1000, "BTC", 1)}
	notifier := &fakeNotifier{}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{fills: fills}, notifier)

	delivered, err := m.RecoverOnStartup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, delivered)
	msgs := notifier.sent()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "BTC")
	assert.Contains(t, msgs[1], "ETH")
	assert.Contains(t, msgs[2], "SOL")
	assert.Equal(t, 3, tracker.HashCount())
}

func TestRecoverOnStartup_RecordsEmptyRun(t *testing.T) {
	notifier := &fakeNotifier{}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{fills: []models.Fill{after(-10, "BTC", 1)}}, notifier)

	delivered, err := m.RecoverOnStartup(context.Background())
	require.NoError(t, err)

	assert.Zero(t, delivered)
	assert.Empty(t, notifier.sent())
	assert.NotNil(t, tracker.Snapshot().LastRecoveryRun)
}

func TestRecoverOnStartup_TransportErrorAbortsPass(t *testing.T) {
	notifier := &fakeNotifier{}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{err: errors.New("dial tcp: timeout")}, notifier)

	_, err := m.RecoverOnStartup(context.Background())
	require.Error(t, err)
	assert.Empty(t, notifier.sent())
	assert.Nil(t, tracker.Snapshot().LastRecoveryRun)
}

func TestRecoverOnStartup_IndividualFailureStopsBeforeWatermarkSkips(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("down")}
	fills := []models.Fill{after(2000, "ETH", 2), after(1000, "BTC", 1)}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{fills: fills}, notifier)
	watermark := tracker.LastProcessed()

	_, err := m.RecoverOnStartup(context.Background())
	require.Error(t, err)
	assert.Equal(t, watermark, tracker.LastProcessed())
	assert.Equal(t, 0, tracker.HashCount())
}

func TestPollOnce_DeliversOnlyMissedFills(t *testing.T) {
	seen := after(1000, "BTC", 1)
	missed := after(2000, "ETH", 2)
	info := &fakeInfo{byTime: []models.Fill{missed, seen}}
	notifier := &fakeNotifier{}
	m, tracker, _ := newTestMonitor(t, info, notifier)

	require.NoError(t, m.ProcessFill(context.Background(), seen))

	delivered, err := m.PollOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, delivered)
	msgs := notifier.sent()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "ETH")
	assert.Equal(t, seen.Time, info.lastFrom.UnixMilli())
	assert.Equal(t, missed.Time, tracker.LastProcessed())

	delivered, err = m.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, delivered)
}

func TestPollOnce_RetriesFailedFillBehindWatermark(t *testing.T) {
	older := after(1000, "BTC", 1)
	newer := after(2000, "ETH", 2)
	info := &fakeInfo{byTime: []models.Fill{older, newer}}
	notifier := &fakeNotifier{err: errors.New("telegram: 502")}
	m, tracker, _ := newTestMonitor(t, info, notifier)

	require.Error(t, m.ProcessFill(context.Background(), older))
	notifier.err = nil
	require.NoError(t, m.ProcessFill(context.Background(), newer))
	require.Equal(t, newer.Time, tracker.LastProcessed())

	delivered, err := m.PollOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, delivered)
	assert.Equal(t, older.Time, info.lastFrom.UnixMilli())
	assert.True(t, tracker.IsProcessed(FillHash(older)))
	assert.False(t, tracker.IsPending(FillHash(older)))
	assert.Equal(t, newer.Time, tracker.LastProcessed())

	msgs := notifier.sent()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1], "BTC")

	info.lastFrom = time.Time{}
	_, err = m.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, newer.Time, info.lastFrom.UnixMilli())
}

func TestRecoverOnStartup_RetriesFailedFillAfterRestart(t *testing.T) {
	older := after(1000, "BTC", 1)
	newer := after(2000, "ETH", 2)
	notifier := &fakeNotifier{err: errors.New("telegram: 502")}
	m, _, path := newTestMonitor(t, &fakeInfo{}, notifier)

	require.Error(t, m.ProcessFill(context.Background(), older))
	notifier.err = nil
	require.NoError(t, m.ProcessFill(context.Background(), newer))

	reopened, err := OpenTracker(path, fixedNow)
	require.NoError(t, err)
	require.True(t, reopened.IsPending(FillHash(older)))

	restarted := NewMonitor(Options{User: "0xuser", ChatID: 42, PollInterval: time.Hour}, reopened,
		&fakeInfo{fills: []models.Fill{newer, older}}, &fakeStream{ch: make(chan exchange.Event)}, notifier, logger.Nop())

	delivered, err := restarted.RecoverOnStartup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, delivered)
	assert.True(t, reopened.IsProcessed(FillHash(older)))
	assert.Empty(t, reopened.Snapshot().PendingFills)
	assert.Len(t, notifier.sent(), 2)
}

func TestDeliver_BatchFailureMarksFillsPending(t *testing.T) {
	var fills []models.Fill
	for i := int64(1); i <= 7; i++ {
		fills = append(fills, after(i*1000, "BTC", i))
	}
	notifier := &fakeNotifier{err: errors.New("down")}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{fills: fills}, notifier)

	_, err := m.RecoverOnStartup(context.Background())
	require.Error(t, err)

	assert.Len(t, tracker.Snapshot().PendingFills, 7)
	assert.True(t, tracker.IsPending(FillHash(fills[0])))
	assert.Zero(t, tracker.HashCount())
}

func TestHandleEvent_ProcessesEveryFill(t *testing.T) {
	notifier := &fakeNotifier{}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{}, notifier)

	m.HandleEvent(context.Background(), exchange.Event{
		Type:  exchange.EventTypeFills,
		Fills: []models.Fill{after(1000, "BTC", 1), after(1000, "BTC", 2), after(1001, "ETH", 3)},
	})

	assert.Len(t, notifier.sent(), 3)
	assert.Equal(t, 3, tracker.HashCount())
	assert.NotNil(t, tracker.Snapshot().LastWebsocketHeartbeat)
}

func TestHandleEvent_SkipsSnapshot(t *testing.T) {
	notifier := &fakeNotifier{}
	m, tracker, _ := newTestMonitor(t, &fakeInfo{}, notifier)

	m.HandleEvent(context.Background(), exchange.Event{
		Type:     exchange.EventTypeFills,
		Snapshot: true,
		Fills:    []models.Fill{after(-50000, "BTC", 1)},
	})

	assert.Empty(t, notifier.sent())
	assert.Equal(t, 0, tracker.HashCount())
}

func TestHandleEvent_ReconnectPersistsCountAndCatchesUp(t *testing.T) {
	info := &fakeInfo{byTime: []models.Fill{after(500, "BTC", 1)}}
	notifier := &fakeNotifier{}
	m, _, path := newTestMonitor(t, info, notifier)

	m.HandleEvent(context.Background(), exchange.Event{Type: exchange.EventTypeReconnect})

	reopened, err := OpenTracker(path, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Snapshot().WebsocketReconnectCount)
	assert.Len(t, notifier.sent(), 1)
}

func TestStart_InitOnceAndStopsWithStream(t *testing.T) {
	notifier := &fakeNotifier{}
	tracker, _ := openTestTracker(t)
	stream := &fakeStream{ch: make(chan exchange.Event, 4)}
	m := NewMonitor(Options{User: "0xuser", PollInterval: time.Hour}, tracker, &fakeInfo{}, stream, notifier, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Start(ctx))
	assert.Equal(t, 1, stream.calls)
	assert.True(t, m.Running())

	stream.ch <- exchange.Event{Type: exchange.EventTypeFills, Fills: []models.Fill{after(100, "BTC", 1)}}
	stream.ch <- exchange.Event{Type: exchange.EventTypeStopped, Err: errors.New("gave up after 10 attempts")}

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after terminal stream event")
	}
	assert.False(t, m.Running())
	assert.Len(t, notifier.sent(), 1)
}

func TestStart_CatchesUpAfterSubscribing(t *testing.T) {
	gap := after(500, "SOL", 5)
	info := &fakeInfo{byTime: []models.Fill{gap}}
	notifier := &fakeNotifier{}
	tracker, _ := openTestTracker(t)
	stream := &fakeStream{ch: make(chan exchange.Event)}
	m := NewMonitor(Options{User: "0xuser", PollInterval: time.Hour}, tracker, info, stream, notifier, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, m.Start(ctx))

	assert.True(t, tracker.IsProcessed(FillHash(gap)))
	msgs := notifier.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "SOL")
}

func TestFormatBatch_GroupsByCoin(t *testing.T) {
	sell := after(3000, "ETH", 3)
	sell.Side = models.FillSideSell
	msg := FormatBatch([]models.Fill{after(1000, "ETH", 1), after(2000, "BTC", 2), sell})

	assert.Contains(t, msg, "3 fills recovered")
	assert.Less(t, strings.Index(msg, "BTC"), strings.Index(msg, "ETH"))
	assert.Contains(t, msg, "<b>ETH</b>: 2 fills, bought 0.01, sold 0.01")
}

func TestFormatFill(t *testing.T) {
	msg := FormatFill(after(0, "BTC", 1))

	assert.Contains(t, msg, "BUY BTC")
	assert.Contains(t, msg, "0.01 @ 50000.5")
	assert.Contains(t, msg, "Notional: $500.01")
	assert.Contains(t, msg, "Fee: 0.2 USDC")
}
