package fills

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"hyperbot/internal/exchange"
	"hyperbot/internal/logger"
	"hyperbot/internal/metrics"
	"hyperbot/internal/models"
)

const (
	DefaultPollInterval   = 300 * time.Second
	DefaultBatchThreshold = 5
)

// Notifier delivers a pre-formatted message. An error means the message was not delivered.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Options struct {
	User           string
	ChatID         int64
	PollInterval   time.Duration
	BatchThreshold int
}

// Monitor feeds fills from startup recovery, the live stream and backup polling
// through one check, notify, record sequence.
type Monitor struct {
	opts     Options
	tracker  *Tracker
	info     exchange.InfoClient
	stream   exchange.FillStream
	notifier Notifier
	log      *logger.Logger

	procMu sync.Mutex

	startMu  sync.Mutex
	started  bool
	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

func NewMonitor(opts Options, tracker *Tracker, info exchange.InfoClient, stream exchange.FillStream, notifier Notifier, log *logger.Logger) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.BatchThreshold <= 0 {
		opts.BatchThreshold = DefaultBatchThreshold
	}
	return &Monitor{
		opts:     opts,
		tracker:  tracker,
		info:     info,
		stream:   stream,
		notifier: notifier,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (m *Monitor) logEntry() *logrus.Entry {
	return m.log.WithComponent("fill_monitor")
}

// Start runs startup recovery, then the live subscription and the backup poll loop.
// Repeated calls return nil without doing anything.
func (m *Monitor) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.started {
		m.logEntry().Debug("Монитор уже запущен.")
		return nil
	}

	if _, err := m.RecoverOnStartup(ctx); err != nil {
		m.logEntry().WithError(err).Warn("Восстановление при старте не выполнено, повтор при следующем опросе.")
	}

	events, err := m.stream.SubscribeUserFills(ctx, m.opts.User)
	if err != nil {
		return fmt.Errorf("Не удалось подписаться на сделки: %w", err)
	}

	m.started = true
	m.running.Store(true)

	// Fills between the recovery query and the subscription are not replayed live.
	if _, err := m.PollOnce(ctx); err != nil {
		m.logEntry().WithError(err).Warn("Догоняющий опрос после подписки не выполнен.")
	}

	go m.consume(ctx, events)
	go m.pollLoop(ctx)

	m.logEntry().WithFields(map[string]interface{}{
		"user":          m.opts.User,
		"poll_interval": m.opts.PollInterval.String(),
	}).Info("Монитор сделок запущен.")
	return nil
}

func (m *Monitor) Running() bool {
	return m.running.Load()
}

// Done is closed once the monitor stops, either by context or after the live stream gives up.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

func (m *Monitor) stop() {
	m.stopOnce.Do(func() {
		m.running.Store(false)
		close(m.done)
		m.logEntry().Info("Монитор сделок остановлен.")
	})
}

func (m *Monitor) consume(ctx context.Context, events <-chan exchange.Event) {
	defer m.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.HandleEvent(ctx, ev)
			if ev.Type == exchange.EventTypeStopped {
				return
			}
		}
	}
}

func (m *Monitor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			if _, err := m.PollOnce(ctx); err != nil {
				m.logEntry().WithError(err).Warn("Резервный опрос сделок не выполнен.")
			}
		}
	}
}

// HandleEvent processes every fill of a live push. Snapshot replays are skipped, history is covered by recovery.
func (m *Monitor) HandleEvent(ctx context.Context, ev exchange.Event) {
	switch ev.Type {
	case exchange.EventTypeFills:
		m.tracker.RecordHeartbeat()
		if ev.Snapshot {
			m.logEntry().WithField("fills", len(ev.Fills)).Debug("Снимок истории сделок пропущен.")
			return
		}
		for _, f := range ev.Fills {
			if err := m.processFill(ctx, f, "live"); err != nil {
				m.logEntry().WithError(err).WithField("coin", f.Coin).Error("Не удалось обработать сделку.")
				return
			}
		}
	case exchange.EventTypeReconnect:
		metrics.WSReconnects.Inc()
		if err := m.tracker.RecordReconnect(); err != nil {
			m.logEntry().WithError(err).Error("Не удалось сохранить счётчик переподключений.")
		}
		if _, err := m.PollOnce(ctx); err != nil {
			m.logEntry().WithError(err).Warn("Догоняющий опрос после переподключения не выполнен.")
		}
	case exchange.EventTypeStopped:
		m.logEntry().WithError(ev.Err).Error("Живая подписка прекращена после исчерпания попыток переподключения.")
	}
}

// ProcessFill notifies about a fill once. A failed notification leaves the fill unrecorded so a later pass retries it.
func (m *Monitor) ProcessFill(ctx context.Context, f models.Fill) error {
	return m.processFill(ctx, f, "live")
}

func (m *Monitor) processFill(ctx context.Context, f models.Fill, source string) error {
	m.procMu.Lock()
	defer m.procMu.Unlock()
	return m.processLocked(ctx, f, source)
}

func (m *Monitor) processLocked(ctx context.Context, f models.Fill, source string) error {
	hash := FillHash(f)
	if m.tracker.IsProcessed(hash) {
		return nil
	}

	if err := m.notifier.Send(ctx, m.opts.ChatID, FormatFill(f)); err != nil {
		metrics.NotificationFailures.Inc()
		m.markFailed(hash, f)
		return fmt.Errorf("Не удалось отправить уведомление о сделке %s: %w", hash, err)
	}

	if err := m.tracker.MarkProcessed(hash, f.Time); err != nil {
		return fmt.Errorf("Не удалось сохранить сделку %s: %w", hash, err)
	}

	metrics.FillsProcessed.WithLabelValues(source).Inc()
	m.log.WithFillHash(hash).WithFields(map[string]interface{}{
		"component": "fill_monitor",
		"coin":      f.Coin,
		"source":    source,
	}).Info("Сделка обработана.")
	return nil
}

func (m *Monitor) markFailed(hash string, f models.Fill) {
	if err := m.tracker.MarkFailed(hash, f.Time); err != nil {
		m.log.WithFillHash(hash).WithError(err).WithField("component", "fill_monitor").Error("Не удалось сохранить неотправленную сделку.")
	}
}

// RecoverOnStartup delivers fills newer than the watermark that arrived while the process was down,
// plus earlier fills whose notification failed.
func (m *Monitor) RecoverOnStartup(ctx context.Context) (int, error) {
	all, err := m.info.UserFills(ctx)
	if err != nil {
		return 0, fmt.Errorf("Не удалось получить историю сделок: %w", err)
	}

	watermark := m.tracker.LastProcessed()
	var fresh []models.Fill
	for _, f := range all {
		if f.Time > watermark || m.tracker.IsPending(FillHash(f)) {
			fresh = append(fresh, f)
		}
	}
	slices.Reverse(fresh)
	slices.SortStableFunc(fresh, func(a, b models.Fill) int {
		return cmp.Compare(a.Time, b.Time)
	})

	metrics.RecoveryFills.WithLabelValues("startup").Add(float64(len(fresh)))

	delivered, deliverErr := m.deliver(ctx, fresh, "recovery")

	if err := m.tracker.RecordRecovery(len(fresh)); err != nil {
		m.logEntry().WithError(err).Error("Не удалось сохранить итоги восстановления.")
	}

	m.logEntry().WithFields(map[string]interface{}{
		"found":     len(fresh),
		"delivered": delivered,
		"watermark": watermark,
	}).Info("Восстановление сделок при старте завершено.")

	return delivered, deliverErr
}

// PollOnce re-queries fills since the watermark, or since the oldest failed fill, and delivers any not yet notified.
func (m *Monitor) PollOnce(ctx context.Context) (int, error) {
	from := m.tracker.RetryFrom()
	fills, err := m.info.UserFillsByTime(ctx, time.UnixMilli(from))
	if err != nil {
		return 0, fmt.Errorf("Не удалось получить сделки с %d: %w", from, err)
	}

	missed := m.unprocessed(fills)
	if len(missed) == 0 {
		m.logEntry().Debug("Резервный опрос: пропущенных сделок нет.")
		return 0, nil
	}

	slices.SortStableFunc(missed, func(a, b models.Fill) int {
		return cmp.Compare(a.Time, b.Time)
	})
	metrics.RecoveryFills.WithLabelValues("poll").Add(float64(len(missed)))
	m.logEntry().WithField("missed", len(missed)).Warn("Резервный опрос нашёл сделки, пропущенные живой подпиской.")

	return m.deliver(ctx, missed, "poll")
}

func (m *Monitor) unprocessed(fills []models.Fill) []models.Fill {
	var out []models.Fill
	for _, f := range fills {
		if !m.tracker.IsProcessed(FillHash(f)) {
			out = append(out, f)
		}
	}
	return out
}

// deliver sends one summary when more than BatchThreshold fills are pending, otherwise one message per fill.
// Fills are expected oldest first; individual delivery stops at the first failure so the watermark never skips a fill.
func (m *Monitor) deliver(ctx context.Context, fills []models.Fill, source string) (int, error) {
	m.procMu.Lock()
	defer m.procMu.Unlock()

	pending := m.unprocessed(fills)
	if len(pending) == 0 {
		return 0, nil
	}

	if len(pending) <= m.opts.BatchThreshold {
		for i, f := range pending {
			if err := m.processLocked(ctx, f, source); err != nil {
				return i, err
			}
		}
		return len(pending), nil
	}

	if err := m.notifier.Send(ctx, m.opts.ChatID, FormatBatch(pending)); err != nil {
		metrics.NotificationFailures.Inc()
		for _, f := range pending {
			m.markFailed(FillHash(f), f)
		}
		return 0, fmt.Errorf("Не удалось отправить сводку по %d сделкам: %w", len(pending), err)
	}

	for i, f := range pending {
		if err := m.tracker.MarkProcessed(FillHash(f), f.Time); err != nil {
			return i, fmt.Errorf("Не удалось сохранить сделку: %w", err)
		}
	}
	metrics.FillsProcessed.WithLabelValues(source).Add(float64(len(pending)))
	return len(pending), nil
}
