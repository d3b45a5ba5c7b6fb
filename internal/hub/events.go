package hub

import "time"

// Event is the tagged-variant event type carried from Connections through
// the Manager to external listeners. Each emitter delivers its events in
// FIFO order; every event is tagged with the originating hub id.
type Event interface {
	// Hub returns the originating hub id.
	Hub() string

	// Type returns a stable machine-readable event name.
	Type() string
}

// Event type names, used for serialization and subscription filters.
const (
	EventTypeHubConnected  = "hub_online"
	EventTypeHubOffline    = "hub_offline"
	EventTypeHubError      = "hub_error"
	EventTypeDeviceAdded   = "device_added"
	EventTypeDeviceRemoved = "device_removed"
	EventTypeStateChanged  = "device_state_change"
	EventTypeDevicesSynced = "devices_updated"
	EventTypePollCompleted = "poll_completed"
	EventTypePollerStarted = "poller_started"
	EventTypePollerStopped = "poller_stopped"
)

// HubConnected fires when a Connection reaches the connected state.
type HubConnected struct {
	HubID string  `json:"hub_id"`
	Info  HubInfo `json:"info"`
}

func (e HubConnected) Hub() string  { return e.HubID }
func (e HubConnected) Type() string { return EventTypeHubConnected }

// HubOffline fires when continuous failures exhaust the grace period.
// LastError carries the text of the last recorded error.
type HubOffline struct {
	HubID     string `json:"hub_id"`
	LastError string `json:"last_error"`
}

func (e HubOffline) Hub() string  { return e.HubID }
func (e HubOffline) Type() string { return EventTypeHubOffline }

// HubError fires for every captured connect/refresh failure.
type HubError struct {
	HubID string `json:"hub_id"`
	Err   error  `json:"-"`
}

func (e HubError) Hub() string  { return e.HubID }
func (e HubError) Type() string { return EventTypeHubError }

// DeviceAdded fires the first poll that observes a new device id.
type DeviceAdded struct {
	HubID  string `json:"hub_id"`
	Device Device `json:"device"`
}

func (e DeviceAdded) Hub() string  { return e.HubID }
func (e DeviceAdded) Type() string { return EventTypeDeviceAdded }

// DeviceRemoved fires the first poll that omits a previously cached id.
// Removal is immediate; there is no debounce.
type DeviceRemoved struct {
	HubID    string `json:"hub_id"`
	DeviceID string `json:"device_id"`
}

func (e DeviceRemoved) Hub() string  { return e.HubID }
func (e DeviceRemoved) Type() string { return EventTypeDeviceRemoved }

// DeviceStateChanged fires at most once per poll per device with at least
// one changed property.
type DeviceStateChanged struct {
	Change DeviceStateChange `json:"change"`
}

func (e DeviceStateChanged) Hub() string  { return e.Change.HubID }
func (e DeviceStateChanged) Type() string { return EventTypeStateChanged }

// DevicesSynced fires once per poll that produced any add, remove or
// property change.
type DevicesSynced struct {
	HubID       string    `json:"hub_id"`
	DeviceCount int       `json:"device_count"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e DevicesSynced) Hub() string  { return e.HubID }
func (e DevicesSynced) Type() string { return EventTypeDevicesSynced }

// PollCompleted fires after every poll cycle, successful or not. Used by
// history recorders to track poll durations.
type PollCompleted struct {
	HubID    string        `json:"hub_id"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
}

func (e PollCompleted) Hub() string  { return e.HubID }
func (e PollCompleted) Type() string { return EventTypePollCompleted }

// PollerStarted fires when a hub's periodic poll loop begins.
type PollerStarted struct {
	HubID    string        `json:"hub_id"`
	Interval time.Duration `json:"interval"`
}

func (e PollerStarted) Hub() string  { return e.HubID }
func (e PollerStarted) Type() string { return EventTypePollerStarted }

// PollerStopped fires when a hub's periodic poll loop halts.
type PollerStopped struct {
	HubID string `json:"hub_id"`
}

func (e PollerStopped) Hub() string  { return e.HubID }
func (e PollerStopped) Type() string { return EventTypePollerStopped }
