// Package progress is the render pool's status reporter: a ticker loop
// that reads shared atomic counters once per second and logs a
// human-readable line.
package progress

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/bbbrecorder/bbbrecorder/internal/renderpool"
)

// Reporter logs renderpool.Counters once per second until Stop is called.
// Reads are racy with respect to the render pool's writers; the report
// is advisory only.
type Reporter struct {
	counters *renderpool.Counters
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func New(counters *renderpool.Counters) *Reporter {
	return &Reporter{
		counters: counters,
		interval: time.Second,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins the ticker loop in its own goroutine.
func (r *Reporter) Start() {
	go r.run()
}

// Stop signals the loop to exit and blocks until it has, emitting one
// final report so the last partition's completion isn't lost between
// ticks.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.report()
		case <-r.stop:
			r.report()
			return
		}
	}
}

func (r *Reporter) report() {
	fd := atomic.LoadInt64(&r.counters.FramesDone)
	ft := atomic.LoadInt64(&r.counters.FramesTotal)
	pd := atomic.LoadInt64(&r.counters.PartitionsDone)
	pt := atomic.LoadInt64(&r.counters.PartitionsTotal)
	log.Printf("[render] frames %d/%d partitions %d/%d", fd, ft, pd, pt)
}
