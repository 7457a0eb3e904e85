package monitoring

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spherical-ai/spherical/libs/catalog-assistant/internal/observability"
)

// Sink persists batches of query events.
type Sink interface {
	Write(ctx context.Context, events []QueryEvent) error
}

// RecorderConfig configures the recorder.
type RecorderConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

// DefaultRecorderConfig returns default recorder configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BufferSize:    256,
		BatchSize:     50,
		FlushInterval: 2 * time.Second,
		WriteTimeout:  5 * time.Second,
	}
}

// Recorder buffers query events and flushes them to a sink in the background.
// Record never blocks: when the buffer is full the event is dropped.
type Recorder struct {
	logger  *observability.Logger
	sink    Sink
	buffer  chan QueryEvent
	config  RecorderConfig
	stopCh  chan struct{}
	doneCh  chan struct{}
	stop    sync.Once
	dropped atomic.Int64
	written atomic.Int64
}

// NewRecorder creates a recorder and starts its flush loop.
func NewRecorder(logger *observability.Logger, sink Sink, config RecorderConfig) *Recorder {
	defaults := DefaultRecorderConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = defaults.FlushInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := &Recorder{
		logger: logger,
		sink:   sink,
		buffer: make(chan QueryEvent, config.BufferSize),
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go r.runFlushLoop()
	return r
}

// Record enqueues an event.
func (r *Recorder) Record(evt QueryEvent) {
	select {
	case <-r.stopCh:
		r.dropped.Add(1)
		return
	default:
	}
	select {
	case r.buffer <- evt:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn().Msg("Query event buffer full, dropping events")
		}
	}
}

// Dropped returns how many events were discarded.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Written returns how many events reached the sink.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// runFlushLoop periodically flushes buffered events.
func (r *Recorder) runFlushLoop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]QueryEvent, 0, r.config.BatchSize)
	for {
		select {
		case evt := <-r.buffer:
			batch = append(batch, evt)
			if len(batch) >= r.config.BatchSize {
				r.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flushBatch(batch)
				batch = batch[:0]
			}
		case <-r.stopCh:
			// drain what is already queued
			for {
				select {
				case evt := <-r.buffer:
					batch = append(batch, evt)
				default:
					if len(batch) > 0 {
						r.flushBatch(batch)
					}
					return
				}
			}
		}
	}
}

// flushBatch writes a batch of events. Failures are logged and forgotten.
func (r *Recorder) flushBatch(batch []QueryEvent) {
	if r.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	out := make([]QueryEvent, len(batch))
	copy(out, batch)
	if err := r.sink.Write(ctx, out); err != nil {
		r.logger.Error().Err(err).Int("count", len(out)).Msg("Failed to flush query events")
		return
	}
	r.written.Add(int64(len(out)))
	r.logger.Debug().Int("count", len(out)).Msg("Flushed query events")
}

// Stop flushes pending events and stops the recorder.
func (r *Recorder) Stop() {
	r.stop.Do(func() { close(r.stopCh) })
	<-r.doneCh
}
