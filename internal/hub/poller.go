package hub

import (
	"context"
	"sync"
	"time"
)

// Refresher is the slice of Connection the Poller drives. Extracted so
// poller tests can substitute a controllable fake.
type Refresher interface {
	RefreshDevices(ctx context.Context) (RefreshSummary, error)
}

// Poller drives periodic device refreshes for one Connection. At most one
// poll is in flight at a time: a tick or Poll call that arrives while a
// refresh is still running returns the previous result instead of
// stacking a second request onto a slow hub.
type Poller struct {
	hubID     string
	refresher Refresher
	onEvent   func(Event)
	logger    Logger

	mu        sync.Mutex
	interval  time.Duration
	inFlight  bool
	last      PollResult
	pollCount uint64
	ticker    *time.Ticker
	stop      chan struct{}
	running   bool
	wg        sync.WaitGroup
}

// NewPoller creates a stopped Poller. Call Start to begin periodic polls.
func NewPoller(hubID string, refresher Refresher, interval time.Duration, onEvent func(Event), logger Logger) *Poller {
	return &Poller{
		hubID:     hubID,
		refresher: refresher,
		onEvent:   onEvent,
		logger:    logger,
		interval:  interval,
	}
}

// Start begins the periodic poll loop. No-op if already running.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ticker = time.NewTicker(p.interval)
	p.stop = make(chan struct{})
	interval := p.interval

	p.wg.Add(1)
	go p.loop(p.ticker, p.stop)
	p.mu.Unlock()

	p.emit(PollerStarted{HubID: p.hubID, Interval: interval})
}

// loop runs until Stop closes the stop channel.
func (p *Poller) loop(ticker *time.Ticker, stop chan struct{}) {
	defer p.wg.Done()
	for {
		select {
		case <-ticker.C:
			p.Poll(context.Background())
		case <-stop:
			return
		}
	}
}

// Stop halts the periodic loop and waits for it to exit. An in-flight
// poll started by a direct Poll call is not interrupted. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.ticker.Stop()
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
	p.emit(PollerStopped{HubID: p.hubID})
}

// SetInterval changes the poll cadence. Takes effect immediately when the
// loop is running; an in-flight poll is unaffected.
func (p *Poller) SetInterval(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.interval = interval
	if p.running {
		p.ticker.Reset(interval)
	}
}

// Interval returns the current poll cadence.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Last returns the most recent poll result.
func (p *Poller) Last() PollResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// PollCount returns the cumulative number of completed polls, successful
// or not. Skipped overlapping polls are not counted.
func (p *Poller) PollCount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pollCount
}

// Poll runs one refresh now, unless a refresh is already in flight, in
// which case the previous result is returned immediately. Failures do not
// get a separate event: they surface as PollCompleted with Success false
// and the error recorded in the result.
func (p *Poller) Poll(ctx context.Context) PollResult {
	p.mu.Lock()
	if p.inFlight {
		last := p.last
		p.mu.Unlock()
		p.logDebug("poll skipped, previous poll still in flight")
		return last
	}
	p.inFlight = true
	p.mu.Unlock()

	start := time.Now()
	summary, err := p.refresher.RefreshDevices(ctx)
	elapsed := time.Since(start)

	result := PollResult{
		Success:  err == nil,
		Devices:  summary.Devices,
		Changes:  summary.Changes,
		Err:      err,
		Duration: elapsed,
	}

	p.mu.Lock()
	p.last = result
	p.pollCount++
	p.inFlight = false
	p.mu.Unlock()

	p.emit(PollCompleted{HubID: p.hubID, Success: result.Success, Duration: elapsed})
	return result
}

func (p *Poller) emit(e Event) {
	if p.onEvent != nil {
		p.onEvent(e)
	}
}

// logDebug logs a debug message if a logger is set.
func (p *Poller) logDebug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, append([]any{"hub", p.hubID}, args...)...)
	}
}
