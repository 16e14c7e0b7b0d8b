// Package queue provides a keyed dispatcher: jobs sharing a key run in
// submission order on a single goroutine, jobs with different keys run in
// parallel. The webhook pipeline keys on transfer id so events for one
// transfer are applied in arrival order while distinct transfers never wait
// on each other.
package queue

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrClosed is returned by Dispatch after Close.
	ErrClosed = errors.New("dispatcher is closed")
	// ErrQueueFull is returned when a key's queue is at capacity. Callers
	// surface it as retryable so the producer redelivers.
	ErrQueueFull = errors.New("dispatch queue for key is full")
)

const workerIdleAfter = time.Minute

type worker struct {
	jobs chan func()
}

// Dispatcher owns one goroutine per active key. Workers retire after an idle
// minute so the goroutine count tracks active keys, not keys ever seen.
type Dispatcher struct {
	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
	closed  bool
	buffer  int
}

func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 16
	}
	return &Dispatcher{
		workers: make(map[string]*worker),
		buffer:  buffer,
	}
}

// Dispatch enqueues fn on key's ordered queue, starting a worker if none is
// running. It never blocks: a full queue returns ErrQueueFull.
func (d *Dispatcher) Dispatch(key string, fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}

	w, ok := d.workers[key]
	if !ok {
		w = &worker{jobs: make(chan func(), d.buffer)}
		d.workers[key] = w
		d.wg.Add(1)
		go d.run(key, w)
	}

	select {
	case w.jobs <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) run(key string, w *worker) {
	defer d.wg.Done()
	for {
		select {
		case fn, ok := <-w.jobs:
			if !ok {
				return
			}
			fn()
		case <-time.After(workerIdleAfter):
			if d.retire(key, w) {
				return
			}
		}
	}
}

// retire removes an idle worker. The check and the map delete happen under
// the dispatcher lock, so a concurrent Dispatch either finds the worker with
// a job enqueued (retire refuses) or finds no worker and starts a fresh one.
func (d *Dispatcher) retire(key string, w *worker) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(w.jobs) > 0 || d.closed {
		return false
	}
	delete(d.workers, key)
	return true
}

// Close stops accepting work, drains every queued job, and waits for all
// workers to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, w := range d.workers {
		close(w.jobs)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
