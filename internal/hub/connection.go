package hub

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Default timing for connection lifecycle management.
const (
	// DefaultGracePeriod is how long a Connection stays reconnecting after
	// the first consecutive failure before being declared offline.
	DefaultGracePeriod = 45 * time.Second

	// baseRetryDelay is the backoff delay for the first retry.
	baseRetryDelay = 1 * time.Second

	// maxRetryDelay caps the exponential backoff.
	maxRetryDelay = 30 * time.Second

	// defaultOpTimeout bounds background retry attempts, which have no
	// caller-supplied context.
	defaultOpTimeout = 15 * time.Second
)

// Logger is the minimal logging interface consumed by this package.
// Compatible with logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client is the wire client for one hub, consumed as a black box. It is
// implemented by hubclient over HTTP and by fakes in tests. Errors should
// be the structured hubclient taxonomy (connection, API, timeout) but the
// engine treats them uniformly.
type Client interface {
	// Status probes the hub and returns its identity and permissions.
	Status(ctx context.Context) (*HubInfo, error)

	// Devices fetches the full device list.
	Devices(ctx context.Context) ([]Device, error)

	// Device fetches a single device by id.
	Device(ctx context.Context, id string) (*Device, error)

	// SetDeviceProperties writes one or more property values to a device.
	SetDeviceProperties(ctx context.Context, id string, props map[string]any) error

	// Snapshot fetches a still image from a camera device.
	Snapshot(ctx context.Context, id string) ([]byte, error)
}

// retryDelay computes the backoff delay for the nth consecutive retry
// since the last success: min(1s x 2^n, 30s).
func retryDelay(n int) time.Duration {
	const capExponent = 5 // 1s << 5 = 32s, already past the cap
	if n < 0 {
		n = 0
	}
	if n >= capExponent {
		return maxRetryDelay
	}
	d := baseRetryDelay << uint(n)
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// RefreshSummary is what one successful refresh produced, returned to the
// Poller for its PollResult.
type RefreshSummary struct {
	Devices []Device
	Changes []DeviceStateChange
}

// ConnectionOptions configures a Connection.
type ConnectionOptions struct {
	// Config identifies the hub. Required.
	Config HubConfig

	// Client is the wire client for this hub. Required.
	Client Client

	// GracePeriod overrides DefaultGracePeriod when > 0.
	GracePeriod time.Duration

	// OnEvent receives this Connection's events in FIFO order. Optional.
	OnEvent func(Event)

	// Logger is optional structured logging.
	Logger Logger
}

// Connection manages one hub's network lifecycle and authoritative device
// cache. It owns its ConnectionState exclusively: every transition cancels
// previously scheduled timers before optionally arming new ones, so a
// stale callback can never revive superseded state.
type Connection struct {
	cfg     HubConfig
	client  Client
	grace   time.Duration
	onEvent func(Event)
	logger  Logger

	mu         sync.Mutex
	state      ConnectionState
	devices    map[string]*Device
	info       *HubInfo
	lastErr    error
	lastPoll   time.Time
	retries    int
	graceStart time.Time // zero = grace window not running
	retryTimer *time.Timer
	graceTimer *time.Timer

	// emitMu serialises event delivery so listeners observe this
	// Connection's events in emission order.
	emitMu sync.Mutex
}

// NewConnection creates a Connection in the disconnected state.
// Call Connect to begin operation.
func NewConnection(opts ConnectionOptions) (*Connection, error) {
	if opts.Config.ID == "" {
		return nil, fmt.Errorf("hub config id is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("client is required")
	}

	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	return &Connection{
		cfg:     opts.Config,
		client:  opts.Client,
		grace:   grace,
		onEvent: opts.OnEvent,
		logger:  opts.Logger,
		state:   StateDisconnected,
		devices: make(map[string]*Device),
	}, nil
}

// Config returns the hub configuration this Connection was built from.
func (c *Connection) Config() HubConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the most recently recorded connect/poll error.
func (c *Connection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Info returns the hub identity captured at connect time, or nil if the
// hub has never been reached.
func (c *Connection) Info() *HubInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Status returns a point-in-time snapshot of the connection's health.
func (c *Connection) Status() HubStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := HubStatus{
		HubID:       c.cfg.ID,
		Name:        c.cfg.Name,
		State:       c.state,
		LastPoll:    c.lastPoll,
		DeviceCount: len(c.devices),
		RetryCount:  c.retries,
		Info:        c.info,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Devices returns independent copies of every cached device record.
func (c *Connection) Devices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d.Clone())
	}
	return out
}

// Device returns a copy of one cached device record.
func (c *Connection) Device(id string) (Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.devices[id]
	if !ok {
		return Device{}, false
	}
	return d.Clone(), true
}

// Connect establishes the connection: status probe, permission capture and
// initial device fetch. No-op when already connected or connecting. On
// failure the Connection enters reconnecting, starts the grace window and
// schedules a background retry; the error is also returned to the caller.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.transitionLocked(StateConnecting)
	c.mu.Unlock()

	c.logInfo("connecting", "host", c.cfg.Host, "port", c.cfg.Port)

	info, err := c.client.Status(ctx)
	if err == nil {
		var devices []Device
		devices, err = c.client.Devices(ctx)
		if err == nil {
			events := c.applyConnectSuccess(info, devices)
			c.emit(events...)
			return nil
		}
	}

	events := c.recordFailure(err)
	c.emit(events...)
	return fmt.Errorf("connecting to hub %s: %w", c.cfg.ID, err)
}

// applyConnectSuccess stores the hub info, populates the initial cache and
// transitions to connected. Returns the events to deliver.
func (c *Connection) applyConnectSuccess(info *HubInfo, devices []Device) []Event {
	now := time.Now()

	c.mu.Lock()
	c.info = info
	outcome := c.updateDeviceCache(devices, now)
	c.lastPoll = now
	c.lastErr = nil
	c.retries = 0
	c.transitionLocked(StateConnected)
	events := c.connectedEventsLocked(info, outcome, now)
	c.mu.Unlock()

	c.logInfo("connected", "devices", len(devices), "firmware", info.Firmware)
	return events
}

// connectedEventsLocked builds the event batch for a transition into
// connected plus any cache deltas. Caller must hold c.mu.
func (c *Connection) connectedEventsLocked(info *HubInfo, outcome diffOutcome, now time.Time) []Event {
	events := []Event{HubConnected{HubID: c.cfg.ID, Info: *info}}
	events = append(events, c.deltaEventsLocked(outcome, now)...)
	return events
}

// deltaEventsLocked converts a diff outcome into ordered events: adds,
// state changes, removes, then one DevicesSynced if anything changed.
// Caller must hold c.mu.
func (c *Connection) deltaEventsLocked(outcome diffOutcome, now time.Time) []Event {
	if !outcome.dirty() {
		return nil
	}

	events := make([]Event, 0, len(outcome.added)+len(outcome.changes)+len(outcome.removed)+1)
	for _, d := range outcome.added {
		events = append(events, DeviceAdded{HubID: c.cfg.ID, Device: d})
	}
	for _, ch := range outcome.changes {
		events = append(events, DeviceStateChanged{Change: ch})
	}
	for _, id := range outcome.removed {
		events = append(events, DeviceRemoved{HubID: c.cfg.ID, DeviceID: id})
	}
	events = append(events, DevicesSynced{
		HubID:       c.cfg.ID,
		DeviceCount: len(c.devices),
		Timestamp:   now,
	})
	return events
}

// RefreshDevices fetches the full device list, diffs it against the cache
// and emits change events. Fails immediately in disconnected or offline
// state. On success while previously reconnecting the Connection returns
// to connected. On failure the error is recorded, the state machine
// advances (reconnecting, or offline once the grace period is exhausted)
// and the error is re-thrown to the caller.
func (c *Connection) RefreshDevices(ctx context.Context) (RefreshSummary, error) {
	c.mu.Lock()
	if c.state == StateDisconnected || c.state == StateOffline {
		state := c.state
		c.mu.Unlock()
		return RefreshSummary{}, fmt.Errorf("%w: cannot refresh in state %s", ErrInvalidState, state)
	}
	c.mu.Unlock()

	devices, err := c.client.Devices(ctx)
	if err != nil {
		events := c.recordFailure(err)
		c.emit(events...)
		return RefreshSummary{}, err
	}

	// A hub whose first Status probe never succeeded has no identity or
	// permissions yet; capture them before declaring it connected.
	c.mu.Lock()
	needStatus := c.state != StateConnected && c.info == nil
	c.mu.Unlock()

	var info *HubInfo
	if needStatus {
		info, err = c.client.Status(ctx)
		if err != nil {
			events := c.recordFailure(err)
			c.emit(events...)
			return RefreshSummary{}, err
		}
	}

	now := time.Now()

	c.mu.Lock()
	if info != nil {
		c.info = info
	}
	outcome := c.updateDeviceCache(devices, now)
	c.lastPoll = now
	c.lastErr = nil
	c.retries = 0

	var events []Event
	if c.state != StateConnected {
		c.transitionLocked(StateConnected)
		if c.info != nil {
			events = append(events, HubConnected{HubID: c.cfg.ID, Info: *c.info})
		}
	}
	events = append(events, c.deltaEventsLocked(outcome, now)...)

	summary := RefreshSummary{
		Devices: make([]Device, 0, len(devices)),
		Changes: outcome.changes,
	}
	for i := range devices {
		summary.Devices = append(summary.Devices, devices[i].Clone())
	}
	c.mu.Unlock()

	c.emit(events...)
	return summary, nil
}

// recordFailure captures a connect/refresh error and advances the state
// machine: first failure after connected enters reconnecting and starts
// the grace window; failures past the grace deadline transition to
// offline; otherwise a background retry is scheduled. Returns the events
// to deliver.
func (c *Connection) recordFailure(err error) []Event {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastErr = err
	events := []Event{HubError{HubID: c.cfg.ID, Err: err}}

	switch c.state {
	case StateConnected, StateConnecting:
		c.transitionLocked(StateReconnecting)
		c.scheduleRetryLocked()
	case StateReconnecting:
		if !c.graceStart.IsZero() && now.Sub(c.graceStart) >= c.grace {
			c.transitionLocked(StateOffline)
			events = append(events, HubOffline{HubID: c.cfg.ID, LastError: err.Error()})
			c.logWarn("hub offline", "error", err)
		} else {
			c.scheduleRetryLocked()
		}
	case StateDisconnected, StateOffline:
		// Terminal for background work; nothing to schedule.
	}

	return events
}

// scheduleRetryLocked arms the retry timer with the current backoff delay,
// replacing any previously scheduled retry. Caller must hold c.mu.
func (c *Connection) scheduleRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	delay := retryDelay(c.retries)
	c.retryTimer = time.AfterFunc(delay, c.backgroundRetry)
	c.logDebug("retry scheduled", "delay", delay.String(), "attempt", c.retries+1)
}

// backgroundRetry runs one scheduled reconnection attempt. Failures are
// swallowed here: recordFailure has already emitted events and scheduled
// the next attempt or declared the hub offline.
func (c *Connection) backgroundRetry() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		// Stale timer: a transition superseded this retry.
		c.mu.Unlock()
		return
	}
	c.retries++
	needStatus := c.info == nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	if needStatus {
		info, err := c.client.Status(ctx)
		if err != nil {
			events := c.recordFailure(err)
			c.emit(events...)
			return
		}
		c.mu.Lock()
		c.info = info
		c.mu.Unlock()
	}

	_, _ = c.RefreshDevices(ctx)
}

// onGraceExpired fires when the grace window elapses without an
// intervening success, declaring the hub offline.
func (c *Connection) onGraceExpired() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	lastErr := c.lastErr
	c.transitionLocked(StateOffline)
	c.mu.Unlock()

	msg := "grace period exhausted"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	c.logWarn("hub offline", "grace", c.grace.String(), "error", msg)
	c.emit(HubOffline{HubID: c.cfg.ID, LastError: msg})
}

// SetDeviceProperty writes a single property value to a device.
func (c *Connection) SetDeviceProperty(ctx context.Context, deviceID, property string, value any) error {
	return c.SetDeviceProperties(ctx, deviceID, map[string]any{property: value})
}

// SetDeviceProperties writes property values to a device. Fails when the
// Connection is not connected; no internal recovery is attempted — the
// caller owns any optimistic-update rollback.
func (c *Connection) SetDeviceProperties(ctx context.Context, deviceID string, props map[string]any) error {
	if err := c.requireConnected(); err != nil {
		return err
	}
	return c.client.SetDeviceProperties(ctx, deviceID, props)
}

// Snapshot fetches a still image from a camera device. Fails when not
// connected or when the hub did not grant the snapshot permission.
func (c *Connection) Snapshot(ctx context.Context, deviceID string) ([]byte, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	allowed := c.info.HasPermission(PermissionSnapshot)
	c.mu.Unlock()
	if !allowed {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, PermissionSnapshot)
	}

	return c.client.Snapshot(ctx, deviceID)
}

// requireConnected fails with a descriptive error unless the Connection is
// in the connected state.
func (c *Connection) requireConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return fmt.Errorf("%w: hub %s is %s", ErrNotConnected, c.cfg.ID, c.state)
	}
	return nil
}

// Disconnect cancels all timers, clears the grace marker and transitions
// to disconnected. Idempotent. The device cache is retained but will be
// rebuilt on the next successful connect.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(StateDisconnected)
	c.mu.Unlock()

	c.logInfo("disconnected")
}

// transitionLocked moves the state machine to a new state. Every
// transition cancels the pending retry timer; entering reconnecting starts
// the grace window if not already running, while every other state clears
// it. Caller must hold c.mu.
func (c *Connection) transitionLocked(to ConnectionState) {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}

	if to == StateReconnecting {
		if c.graceStart.IsZero() {
			c.graceStart = time.Now()
			c.graceTimer = time.AfterFunc(c.grace, c.onGraceExpired)
		}
	} else {
		if c.graceTimer != nil {
			c.graceTimer.Stop()
			c.graceTimer = nil
		}
		c.graceStart = time.Time{}
	}

	if c.state != to {
		c.logDebug("state transition", "from", string(c.state), "to", string(to))
	}
	c.state = to
}

// emit delivers events to the listener in order. Never called with c.mu
// held; emitMu keeps delivery order stable across goroutines.
func (c *Connection) emit(events ...Event) {
	if c.onEvent == nil || len(events) == 0 {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	for _, e := range events {
		c.onEvent(e)
	}
}

// logDebug logs a debug message if a logger is set.
func (c *Connection) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, append([]any{"hub", c.cfg.ID}, args...)...)
	}
}

// logInfo logs an info message if a logger is set.
func (c *Connection) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, append([]any{"hub", c.cfg.ID}, args...)...)
	}
}

// logWarn logs a warning if a logger is set.
func (c *Connection) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, append([]any{"hub", c.cfg.ID}, args...)...)
	}
}
