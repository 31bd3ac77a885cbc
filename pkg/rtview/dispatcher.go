package rtview

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/rtview-feed/pkg/types"
)

// Operation names a DataServer call, for logging and outcome reporting.
type Operation string

const (
	OpDeclare  Operation = "create_datacache"
	OpDispatch Operation = "send_datatable"
)

// OutcomeFunc observes the result of every call the Dispatcher issues.
type OutcomeFunc func(op Operation, cacheName string, err error)

// Result is the eventual outcome of a Declare or Dispatch call.
type Result struct {
	ready chan struct{}
	err   error
}

func newResult() *Result {
	return &Result{ready: make(chan struct{})}
}

func (r *Result) set(err error) {
	r.err = err
	close(r.ready)
}

// Ready returns a channel that is closed once the call has completed.
func (r *Result) Ready() <-chan struct{} {
	return r.ready
}

// Get blocks until the call completes or ctx is done.
func (r *Result) Get(ctx context.Context) error {
	select {
	case <-r.ready:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatcher issues DataServer calls without blocking its caller. Failures are
// logged and reported to the outcome hook, never returned to the caller's path.
type Dispatcher struct {
	client    CacheClient
	logger    zerolog.Logger
	onOutcome OutcomeFunc

	mu       sync.Mutex
	declared map[string]*Result

	wg         sync.WaitGroup
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewDispatcher creates a Dispatcher over client. onOutcome may be nil.
func NewDispatcher(client CacheClient, logger zerolog.Logger, onOutcome OutcomeFunc) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		client:     client,
		logger:     logger.With().Str("component", "Dispatcher").Logger(),
		onOutcome:  onOutcome,
		declared:   make(map[string]*Result),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// Declare issues create_datacache for cacheName once. Later calls for the same
// cache return the first call's Result without contacting the server again.
func (d *Dispatcher) Declare(cacheName string, schema types.CacheSchema) *Result {
	d.mu.Lock()
	if res, ok := d.declared[cacheName]; ok {
		d.mu.Unlock()
		d.logger.Debug().Str("cache", cacheName).Msg("Cache already declared, skipping")
		return res
	}
	res := newResult()
	d.declared[cacheName] = res
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := d.client.CreateDataCache(d.baseCtx, cacheName, schema)
		if err != nil {
			d.logger.Error().Err(err).Str("cache", cacheName).Msg("Failed to create data cache; data for this cache may be rejected")
		} else {
			d.logger.Info().Str("cache", cacheName).Msg("Data cache declared")
		}
		d.report(OpDeclare, cacheName, err)
		res.set(err)
	}()
	return res
}

// Dispatch issues send_datatable for record. If the cache has a declaration
// in flight, the post waits for it to finish first; the caller never waits.
func (d *Dispatcher) Dispatch(cacheName string, record types.NormalizedRecord) *Result {
	d.mu.Lock()
	declared := d.declared[cacheName]
	d.mu.Unlock()

	res := newResult()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if declared != nil {
			select {
			case <-declared.Ready():
			case <-d.baseCtx.Done():
				d.report(OpDispatch, cacheName, d.baseCtx.Err())
				res.set(d.baseCtx.Err())
				return
			}
		}
		err := d.client.SendDataTable(d.baseCtx, cacheName, record)
		if err != nil {
			d.logger.Error().Err(err).Str("cache", cacheName).Msg("Failed to send data table")
		}
		d.report(OpDispatch, cacheName, err)
		res.set(err)
	}()
	return res
}

func (d *Dispatcher) report(op Operation, cacheName string, err error) {
	if d.onOutcome != nil {
		d.onOutcome(op, cacheName, err)
	}
}

// Wait blocks until every issued call has completed or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts calls that are still in flight.
func (d *Dispatcher) Close() {
	d.cancelBase()
}
