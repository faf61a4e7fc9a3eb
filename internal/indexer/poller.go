package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"agent-marketplace/internal/chain"
	"agent-marketplace/internal/config"
	"agent-marketplace/internal/store"

	"github.com/rs/zerolog/log"
)

// Poller mirrors contract events into the store on a fixed interval. The
// watermark is the highest block whose events have all been applied; it
// only moves after a whole batch succeeds and is persisted first.
type Poller struct {
	reader  Reader
	cursors CursorStore
	machine StateMachine
	cfg     config.IndexerConfig

	watermark atomic.Uint64
	running   atomic.Bool
	tickMu    sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewPoller(reader Reader, cursors CursorStore, machine StateMachine, cfg config.IndexerConfig) *Poller {
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 2000
	}
	if cfg.CursorName == "" {
		cfg.CursorName = "marketplace"
	}
	p := &Poller{
		reader:  reader,
		cursors: cursors,
		machine: machine,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	p.watermark.Store(cfg.StartBlock)
	return p
}

// Start resumes from the persisted cursor, or START_BLOCK when there is none,
// and runs the first tick immediately. Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		log.Warn().Msg("indexer_already_running")
		return nil
	}
	block, err := p.cursors.GetCursor(ctx, p.cfg.CursorName)
	switch {
	case err == nil:
		p.watermark.Store(block)
	case errors.Is(err, store.ErrNotFound):
		p.watermark.Store(p.cfg.StartBlock)
	default:
		p.running.Store(false)
		return fmt.Errorf("load cursor %s: %w", p.cfg.CursorName, err)
	}
	metricLastBlock.Set(int64(p.watermark.Load()))
	log.Info().
		Uint64("watermark", p.watermark.Load()).
		Dur("interval", p.cfg.PollInterval()).
		Uint64("max_block_range", p.cfg.MaxBlockRange).
		Msg("indexer_started")

	go p.loop(ctx)
	return nil
}

// Stop prevents further ticks. A tick already in flight runs to completion;
// Done is closed once the loop has exited.
func (p *Poller) Stop() {
	p.running.Store(false)
	p.stopOnce.Do(func() { close(p.stopCh) })
	log.Info().Msg("indexer_stopped")
}

func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) Watermark() uint64 { return p.watermark.Load() }

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-timer.C:
		}
		if !p.running.Load() {
			return
		}
		p.runTick(ctx)
		timer.Reset(p.cfg.PollInterval())
	}
}

func (p *Poller) runTick(ctx context.Context) {
	if p.cfg.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TickTimeout)
		defer cancel()
	}
	if err := p.Tick(ctx); err != nil {
		log.Error().Err(err).Uint64("watermark", p.Watermark()).Msg("indexer_tick_failed")
	}
}

// Tick applies every block between the watermark and the chain head in
// batches of at most MaxBlockRange blocks. The first failure aborts the tick
// and leaves the failed batch to be replayed by the next one.
func (p *Poller) Tick(ctx context.Context) error {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()
	metricTicksTotal.Add(1)

	head, err := p.reader.CurrentHeight(ctx)
	if err != nil {
		metricTickErrors.Add(1)
		return fmt.Errorf("current height: %w", err)
	}
	from := p.watermark.Load() + 1
	for from <= head {
		to := head
		if span := p.cfg.MaxBlockRange; to-from+1 > span {
			to = from + span - 1
		}
		n, err := p.applyRange(ctx, from, to)
		if err != nil {
			metricTickErrors.Add(1)
			return fmt.Errorf("blocks %d-%d: %w", from, to, err)
		}
		if err := p.cursors.SetCursor(ctx, p.cfg.CursorName, to); err != nil {
			metricTickErrors.Add(1)
			return fmt.Errorf("save cursor at %d: %w", to, err)
		}
		p.watermark.Store(to)
		metricLastBlock.Set(int64(to))
		if n > 0 {
			log.Info().Uint64("from_block", from).Uint64("to_block", to).Int("events", n).Msg("indexer_batch_applied")
		} else {
			log.Debug().Uint64("from_block", from).Uint64("to_block", to).Msg("indexer_batch_empty")
		}
		from = to + 1
	}
	return nil
}

func (p *Poller) applyRange(ctx context.Context, from, to uint64) (int, error) {
	applied := 0
	for _, kind := range chain.Kinds {
		events, err := p.reader.QueryEvents(ctx, kind, from, to)
		if err != nil {
			return applied, fmt.Errorf("query %s: %w", kind, err)
		}
		for _, ev := range events {
			if err := p.apply(ctx, ev); err != nil {
				return applied, err
			}
			applied++
			metricEventsTotal.Add(1)
		}
	}
	return applied, nil
}
