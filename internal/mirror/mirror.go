// Package mirror relays the hub engine's event stream onto external
// sinks: retained MQTT topics for adapters that want push semantics on
// top of the polled hubs, and InfluxDB measurements for history.
//
// Both sinks are optional; a Mirror with neither configured consumes and
// discards events. Delivery is best effort: a failed publish is logged
// and dropped, never retried, so a broker outage cannot stall the
// engine's event fan-out.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/graymere/hublink/internal/hub"
	"github.com/graymere/hublink/internal/infrastructure/mqtt"
)

// eventBuffer is the subscription buffer size. The engine drops events
// for slow subscribers, so the buffer absorbs poll bursts.
const eventBuffer = 256

// Engine is the slice of the hub Manager the mirror consumes.
type Engine interface {
	Subscribe(buffer int) (<-chan hub.Event, func())
	GetStatus(hubID string) (hub.HubStatus, error)
}

// Publisher is the MQTT surface the mirror writes to. Satisfied by
// *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// Recorder is the history surface the mirror writes to. Satisfied by
// *influxdb.Client; writes are non-blocking and batched there.
type Recorder interface {
	WriteDeviceState(hubID, deviceID, category string, props map[string]any)
	WriteHubStatus(hubID, state string, deviceCount, retryCount int)
	WritePollDuration(hubID string, success bool, duration time.Duration)
}

// Options configures a Mirror. Publisher and Recorder are each optional.
type Options struct {
	Engine    Engine
	Publisher Publisher
	Recorder  Recorder
	Logger    hub.Logger
}

// Mirror consumes engine events and fans them out to the configured
// sinks. Create with New, start with Run.
type Mirror struct {
	engine    Engine
	publisher Publisher
	recorder  Recorder
	logger    hub.Logger
	topics    mqtt.Topics
}

// New creates a Mirror. The engine is required.
func New(opts Options) (*Mirror, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("mirror: engine is required")
	}
	return &Mirror{
		engine:    opts.Engine,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
	}, nil
}

// Run subscribes to the engine and relays events until the context is
// cancelled or the engine closes the stream. It blocks; run it in its
// own goroutine.
func (m *Mirror) Run(ctx context.Context) {
	events, cancel := m.engine.Subscribe(eventBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			m.handle(e)
		}
	}
}

func (m *Mirror) handle(e hub.Event) {
	switch ev := e.(type) {
	case hub.HubConnected:
		m.publishHubStatus(ev.HubID)
		m.recordHubStatus(ev.HubID)
	case hub.HubOffline:
		m.publishHubStatus(ev.HubID)
		m.recordHubStatus(ev.HubID)
	case hub.DeviceAdded:
		m.publishDeviceState(ev.HubID, ev.Device)
		m.recordDeviceState(ev.HubID, ev.Device)
	case hub.DeviceStateChanged:
		m.publishDeviceState(ev.Change.HubID, ev.Change.Device)
		m.recordDeviceState(ev.Change.HubID, ev.Change.Device)
	case hub.DeviceRemoved:
		m.publishDeviceRemoved(ev.HubID, ev.DeviceID)
	case hub.PollCompleted:
		if m.recorder != nil {
			m.recorder.WritePollDuration(ev.HubID, ev.Success, ev.Duration)
		}
	}

	// Every event also goes to its type topic for wildcard consumers.
	m.publishEvent(e)
}

// publishHubStatus publishes the hub's full status retained, so a
// late-joining adapter sees the current state immediately.
func (m *Mirror) publishHubStatus(hubID string) {
	if m.publisher == nil {
		return
	}
	status, err := m.engine.GetStatus(hubID)
	if err != nil {
		// Hub was removed between event emission and lookup.
		return
	}
	payload, err := json.Marshal(status)
	if err != nil {
		m.logWarn("failed to marshal hub status", "hub", hubID, "error", err)
		return
	}
	if err := m.publisher.PublishRetained(m.topics.HubStatus(hubID), payload); err != nil {
		m.logWarn("failed to publish hub status", "hub", hubID, "error", err)
	}
}

func (m *Mirror) recordHubStatus(hubID string) {
	if m.recorder == nil {
		return
	}
	status, err := m.engine.GetStatus(hubID)
	if err != nil {
		return
	}
	m.recorder.WriteHubStatus(hubID, string(status.State), status.DeviceCount, status.RetryCount)
}

func (m *Mirror) publishDeviceState(hubID string, device hub.Device) {
	if m.publisher == nil {
		return
	}
	payload, err := json.Marshal(device)
	if err != nil {
		m.logWarn("failed to marshal device state", "hub", hubID, "device", device.ID, "error", err)
		return
	}
	if err := m.publisher.PublishRetained(m.topics.DeviceState(hubID, device.ID), payload); err != nil {
		m.logWarn("failed to publish device state", "hub", hubID, "device", device.ID, "error", err)
	}
}

func (m *Mirror) recordDeviceState(hubID string, device hub.Device) {
	if m.recorder == nil || device.Props == nil {
		return
	}
	m.recorder.WriteDeviceState(hubID, device.ID, string(device.Category), device.Props.PropertyMap())
}

// publishDeviceRemoved announces the removal and clears the retained
// state topic so stale state does not outlive the device.
func (m *Mirror) publishDeviceRemoved(hubID, deviceID string) {
	if m.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"hub_id": hubID, "device_id": deviceID})
	if err != nil {
		return
	}
	if err := m.publisher.Publish(m.topics.DeviceRemoved(hubID, deviceID), payload, 1, false); err != nil {
		m.logWarn("failed to publish device removal", "hub", hubID, "device", deviceID, "error", err)
	}
	if err := m.publisher.PublishRetained(m.topics.DeviceState(hubID, deviceID), nil); err != nil {
		m.logWarn("failed to clear retained device state", "hub", hubID, "device", deviceID, "error", err)
	}
}

func (m *Mirror) publishEvent(e hub.Event) {
	if m.publisher == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		m.logWarn("failed to marshal event", "type", e.Type(), "error", err)
		return
	}
	if err := m.publisher.Publish(m.topics.Event(e.Type()), payload, 0, false); err != nil {
		m.logWarn("failed to publish event", "type", e.Type(), "error", err)
	}
}

func (m *Mirror) logWarn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}
