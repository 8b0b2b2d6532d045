package audit

/*
Файл trail.go реализует журнал решений (Audit Trail) по заявкам на согласование.

- Non-blocking Logging: обработчики Slack только кладут событие в канал,
  запись в хранилище не влияет на время ответа.
- Batching: события копятся в памяти и пишутся пачкой по таймеру или при
  достижении размера пачки.
- Drain Pattern: Stop закрывает канал и ждёт, пока воркер вычитает остаток
  и сделает финальный flush.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться события
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

type Auditor interface {
	Log(event Event)
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	BufferGauge   prometheus.Gauge // опционально
}

type Trail struct {
	ch     chan Event
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup
	opts   Options

	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
	stopOnce sync.Once
}

func NewTrail(repo StorageInterface, logger *zap.Logger, opts Options) *Trail {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:     make(chan Event, opts.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "audit")),
		opts:   opts,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	t.stopOnce.Do(func() {
		atomic.StoreInt32(&t.isClosed, 1)

		// Даем крошечную паузу, чтобы текущие Log успели проскочить
		time.Sleep(10 * time.Millisecond)

		t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
		close(t.ch)
		t.wg.Wait()
		t.logger.Info("audit trail stopped gracefully")
	})
}

func (t *Trail) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: переполненный буфер не тормозит обработчик Slack
	select {
	case t.ch <- event:
		t.observeFill()
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("approval_id", event.ApprovalID),
			zap.String("kind", string(event.Kind)),
			zap.String("trace_id", event.TraceID),
		)
	}
}

func (t *Trail) observeFill() {
	if t.opts.BufferGauge != nil {
		t.opts.BufferGauge.Set(float64(len(t.ch)))
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, t.opts.BatchSize)
	ticker := time.NewTicker(t.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст может быть уже закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Int("events", len(batch)), zap.Error(err))
			}
			batch = batch[:0]
		}
		t.observeFill()
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): остаток уже вычитан, финальный сброс
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= t.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
