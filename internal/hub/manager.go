package hub

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultStartupStagger is the delay between successive hub connection
// attempts at startup, so a node with many hubs does not slam the local
// network with simultaneous probes.
const DefaultStartupStagger = 2 * time.Second

// DefaultPollInterval is the poll cadence for hubs with no explicit
// interval when the global setting is also unset.
const DefaultPollInterval = 30 * time.Second

// SettingsStore persists hub configurations and global settings across
// restarts. Implemented by settings.Store over SQLite.
type SettingsStore interface {
	Load(ctx context.Context) (Settings, error)
	SaveHub(ctx context.Context, cfg HubConfig) error
	DeleteHub(ctx context.Context, hubID string) error
	SaveGlobals(ctx context.Context, s Settings) error
}

// ClientFactory builds a wire client for one hub configuration.
type ClientFactory func(cfg HubConfig) (Client, error)

// HubDevice pairs a device record with the hub that owns it, for
// flattened cross-hub listings.
type HubDevice struct {
	HubID  string `json:"hubId"`
	Device Device `json:"device"`
}

// managedHub bundles one hub's connection, poller and authoritative
// configuration.
type managedHub struct {
	cfg    HubConfig
	conn   *Connection
	poller *Poller
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Store persists hub and global settings. Required.
	Store SettingsStore

	// NewClient builds wire clients for hubs. Required.
	NewClient ClientFactory

	// Stagger overrides DefaultStartupStagger when > 0.
	Stagger time.Duration

	// Logger is optional structured logging.
	Logger Logger
}

// Manager owns every hub connection, the cross-hub device routing index
// and the aggregated event stream. All methods are safe for concurrent
// use. A Manager is created explicitly and passed to its consumers; there
// is no package-level instance.
type Manager struct {
	store     SettingsStore
	newClient ClientFactory
	stagger   time.Duration
	logger    Logger

	mu       sync.RWMutex
	hubs     map[string]*managedHub
	routes   map[string]string // device id -> hub id
	settings Settings
	subs     map[int]chan Event
	nextSub  int
	closed   bool

	done    chan struct{}
	startWG sync.WaitGroup
}

// NewManager creates a Manager. Call Initialize to load persisted hubs
// and begin connecting.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if opts.NewClient == nil {
		return nil, fmt.Errorf("client factory is required")
	}

	stagger := opts.Stagger
	if stagger <= 0 {
		stagger = DefaultStartupStagger
	}

	return &Manager{
		store:     opts.Store,
		newClient: opts.NewClient,
		stagger:   stagger,
		logger:    opts.Logger,
		hubs:      make(map[string]*managedHub),
		routes:    make(map[string]string),
		subs:      make(map[int]chan Event),
		done:      make(chan struct{}),
	}, nil
}

// Initialize loads persisted settings, registers every stored hub and
// connects them in the background, staggered so startup does not probe
// all hubs at once. Returns once the hubs are registered; connection
// progress is reported through events and hub statuses.
func (m *Manager) Initialize(ctx context.Context) error {
	settings, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.settings = settings

	ordered := make([]*managedHub, 0, len(settings.Hubs))
	for _, cfg := range settings.Hubs {
		if _, exists := m.hubs[cfg.ID]; exists {
			m.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrHubExists, cfg.ID)
		}
		h, err := m.buildHubLocked(cfg)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("building hub %s: %w", cfg.ID, err)
		}
		m.hubs[cfg.ID] = h
		ordered = append(ordered, h)
	}
	m.mu.Unlock()

	m.logInfo("initialized", "hubs", len(ordered))

	for i, h := range ordered {
		m.startWG.Add(1)
		go m.staggeredStart(time.Duration(i)*m.stagger, h)
	}
	return nil
}

// staggeredStart waits its slot in the startup schedule, then connects
// the hub and starts its poller. Aborts if the Manager closes first.
func (m *Manager) staggeredStart(delay time.Duration, h *managedHub) {
	defer m.startWG.Done()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-m.done:
			return
		}
	}

	select {
	case <-m.done:
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	if err := h.conn.Connect(ctx); err != nil {
		m.logWarn("startup connect failed", "hub", h.cfg.ID, "error", err)
	}
	h.poller.Start()
}

// buildHubLocked constructs the connection and poller for a hub config.
// Caller must hold m.mu.
func (m *Manager) buildHubLocked(cfg HubConfig) (*managedHub, error) {
	client, err := m.newClient(cfg)
	if err != nil {
		return nil, err
	}

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = m.settings.DefaultPollInterval
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	conn, err := NewConnection(ConnectionOptions{
		Config:      cfg,
		Client:      client,
		GracePeriod: m.settings.GracePeriod,
		OnEvent:     m.handleEvent,
		Logger:      m.logger,
	})
	if err != nil {
		return nil, err
	}

	poller := NewPoller(cfg.ID, conn, interval, m.handleEvent, m.logger)
	return &managedHub{cfg: cfg, conn: conn, poller: poller}, nil
}

// AddHub validates, persists and registers a new hub, then connects it.
// A connect failure does not undo the add: the hub stays registered and
// its reconnection machinery keeps trying, with progress visible through
// events and GetStatus.
func (m *Manager) AddHub(ctx context.Context, cfg HubConfig) error {
	if err := validateHubConfig(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, exists := m.hubs[cfg.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHubExists, cfg.ID)
	}
	h, err := m.buildHubLocked(cfg)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("building hub %s: %w", cfg.ID, err)
	}
	m.hubs[cfg.ID] = h
	m.settings.Hubs = append(m.settings.Hubs, cfg)
	m.mu.Unlock()

	if err := m.store.SaveHub(ctx, cfg); err != nil {
		m.removeHubEntry(cfg.ID)
		return fmt.Errorf("persisting hub %s: %w", cfg.ID, err)
	}

	if err := h.conn.Connect(ctx); err != nil {
		m.logWarn("initial connect failed", "hub", cfg.ID, "error", err)
	}
	h.poller.Start()

	m.logInfo("hub added", "hub", cfg.ID, "host", cfg.Host)
	return nil
}

// RemoveHub stops and disconnects a hub, purges its routing entries and
// deletes it from persistent settings.
func (m *Manager) RemoveHub(ctx context.Context, hubID string) error {
	m.mu.Lock()
	h, ok := m.hubs[hubID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHubNotFound, hubID)
	}
	delete(m.hubs, hubID)
	m.purgeRoutesLocked(hubID)
	m.dropSettingsHubLocked(hubID)
	m.mu.Unlock()

	h.poller.Stop()
	h.conn.Disconnect()

	if err := m.store.DeleteHub(ctx, hubID); err != nil {
		return fmt.Errorf("deleting hub %s: %w", hubID, err)
	}

	m.logInfo("hub removed", "hub", hubID)
	return nil
}

// UpdateHub applies a partial update to a hub configuration. Interval and
// name changes take effect in place; changes to connection-relevant
// fields (host, port, TLS, API key) rebuild and reconnect the hub.
func (m *Manager) UpdateHub(ctx context.Context, hubID string, patch HubPatch) error {
	m.mu.Lock()
	h, ok := m.hubs[hubID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHubNotFound, hubID)
	}

	cfg := h.cfg
	reconnect := applyHubPatch(&cfg, patch)
	if err := validateHubConfig(cfg); err != nil {
		m.mu.Unlock()
		return err
	}

	prev := h.cfg

	if !reconnect {
		prevInterval := h.poller.Interval()
		h.cfg = cfg
		m.replaceSettingsHubLocked(cfg)
		if patch.PollInterval != nil {
			h.poller.SetInterval(*patch.PollInterval)
		}
		m.mu.Unlock()
		if err := m.store.SaveHub(ctx, cfg); err != nil {
			// Persist failed: restore the in-memory view so it keeps
			// matching durable state, as AddHub does.
			m.mu.Lock()
			h.cfg = prev
			m.replaceSettingsHubLocked(prev)
			m.mu.Unlock()
			if patch.PollInterval != nil {
				h.poller.SetInterval(prevInterval)
			}
			return fmt.Errorf("persisting hub %s: %w", hubID, err)
		}
		m.logInfo("hub updated", "hub", hubID)
		return nil
	}

	// Connection-relevant change: rebuild the connection with the new
	// wire parameters.
	replacement, err := m.buildHubLocked(cfg)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("building hub %s: %w", hubID, err)
	}
	m.hubs[hubID] = replacement
	m.replaceSettingsHubLocked(cfg)
	m.mu.Unlock()

	if err := m.store.SaveHub(ctx, cfg); err != nil {
		// Persist failed: the old hub is still running untouched, so put
		// it back and discard the never-started replacement.
		m.mu.Lock()
		m.hubs[hubID] = h
		m.replaceSettingsHubLocked(prev)
		m.mu.Unlock()
		return fmt.Errorf("persisting hub %s: %w", hubID, err)
	}

	m.mu.Lock()
	m.purgeRoutesLocked(hubID)
	m.mu.Unlock()

	h.poller.Stop()
	h.conn.Disconnect()

	if err := replacement.conn.Connect(ctx); err != nil {
		m.logWarn("reconnect after update failed", "hub", hubID, "error", err)
	}
	replacement.poller.Start()

	m.logInfo("hub updated", "hub", hubID, "reconnected", true)
	return nil
}

// applyHubPatch merges patch fields into cfg and reports whether any
// connection-relevant field changed.
func applyHubPatch(cfg *HubConfig, patch HubPatch) (reconnect bool) {
	if patch.Name != nil {
		cfg.Name = *patch.Name
	}
	if patch.PollInterval != nil {
		cfg.PollInterval = *patch.PollInterval
	}
	if patch.Host != nil && *patch.Host != cfg.Host {
		cfg.Host = *patch.Host
		reconnect = true
	}
	if patch.Port != nil && *patch.Port != cfg.Port {
		cfg.Port = *patch.Port
		reconnect = true
	}
	if patch.UseHTTPS != nil && *patch.UseHTTPS != cfg.UseHTTPS {
		cfg.UseHTTPS = *patch.UseHTTPS
		reconnect = true
	}
	if patch.APIKey != nil && *patch.APIKey != cfg.APIKey {
		cfg.APIKey = *patch.APIKey
		reconnect = true
	}
	return reconnect
}

// validateHubConfig checks the fields a hub cannot operate without.
func validateHubConfig(cfg HubConfig) error {
	var errs []string
	if cfg.ID == "" {
		errs = append(errs, "id is required")
	}
	if cfg.Host == "" {
		errs = append(errs, "host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port %d out of range", cfg.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid hub config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Hubs returns the configurations of all registered hubs, sorted by id.
func (m *Manager) Hubs() []HubConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]HubConfig, 0, len(m.hubs))
	for _, h := range m.hubs {
		out = append(out, h.cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetStatus returns the live status of one hub. The name reflects the
// Manager's configuration, which is authoritative over the connection's
// construction-time copy.
func (m *Manager) GetStatus(hubID string) (HubStatus, error) {
	m.mu.RLock()
	h, ok := m.hubs[hubID]
	m.mu.RUnlock()
	if !ok {
		return HubStatus{}, fmt.Errorf("%w: %s", ErrHubNotFound, hubID)
	}

	st := h.conn.Status()
	st.Name = h.cfg.Name
	return st, nil
}

// Statuses returns the live status of every hub, sorted by hub id.
func (m *Manager) Statuses() []HubStatus {
	m.mu.RLock()
	hubs := make([]*managedHub, 0, len(m.hubs))
	for _, h := range m.hubs {
		hubs = append(hubs, h)
	}
	m.mu.RUnlock()

	out := make([]HubStatus, 0, len(hubs))
	for _, h := range hubs {
		st := h.conn.Status()
		st.Name = h.cfg.Name
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HubID < out[j].HubID })
	return out
}

// ListDevices returns every cached device across all hubs, sorted by hub
// id then device id.
func (m *Manager) ListDevices() []HubDevice {
	m.mu.RLock()
	hubs := make([]*managedHub, 0, len(m.hubs))
	for _, h := range m.hubs {
		hubs = append(hubs, h)
	}
	m.mu.RUnlock()

	var out []HubDevice
	for _, h := range hubs {
		for _, d := range h.conn.Devices() {
			out = append(out, HubDevice{HubID: h.cfg.ID, Device: d})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HubID != out[j].HubID {
			return out[i].HubID < out[j].HubID
		}
		return out[i].Device.ID < out[j].Device.ID
	})
	return out
}

// GetDevice resolves a device id (raw or hub-qualified "hub:device") and
// returns a copy of its cached record.
func (m *Manager) GetDevice(deviceID string) (HubDevice, error) {
	hubID, rawID, err := m.resolveDevice(deviceID)
	if err != nil {
		return HubDevice{}, err
	}

	m.mu.RLock()
	h, ok := m.hubs[hubID]
	m.mu.RUnlock()
	if !ok {
		return HubDevice{}, fmt.Errorf("%w: %s", ErrHubNotFound, hubID)
	}

	d, ok := h.conn.Device(rawID)
	if !ok {
		return HubDevice{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return HubDevice{HubID: hubID, Device: d}, nil
}

// SetDeviceProperty routes a single-property write to the owning hub.
func (m *Manager) SetDeviceProperty(ctx context.Context, deviceID, property string, value any) error {
	return m.SetDeviceProperties(ctx, deviceID, map[string]any{property: value})
}

// SetDeviceProperties routes a property write to the owning hub. An
// unroutable device id fails before any network traffic.
func (m *Manager) SetDeviceProperties(ctx context.Context, deviceID string, props map[string]any) error {
	hubID, rawID, err := m.resolveDevice(deviceID)
	if err != nil {
		return err
	}

	m.mu.RLock()
	h, ok := m.hubs[hubID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrHubNotFound, hubID)
	}

	return h.conn.SetDeviceProperties(ctx, rawID, props)
}

// Snapshot routes a camera snapshot request to the owning hub.
func (m *Manager) Snapshot(ctx context.Context, deviceID string) ([]byte, error) {
	hubID, rawID, err := m.resolveDevice(deviceID)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	h, ok := m.hubs[hubID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHubNotFound, hubID)
	}

	return h.conn.Snapshot(ctx, rawID)
}

// resolveDevice maps a device id to its owning hub. A "hub:device"
// qualified id bypasses the routing index, which disambiguates devices
// whose raw ids collide across hubs.
func (m *Manager) resolveDevice(deviceID string) (hubID, rawID string, err error) {
	if i := strings.IndexByte(deviceID, ':'); i > 0 {
		return deviceID[:i], deviceID[i+1:], nil
	}

	m.mu.RLock()
	hubID, ok := m.routes[deviceID]
	m.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return hubID, deviceID, nil
}

// RefreshHub polls one hub immediately, subject to the poller's overlap
// guard: if a poll is already in flight the previous result is returned.
func (m *Manager) RefreshHub(ctx context.Context, hubID string) (PollResult, error) {
	m.mu.RLock()
	h, ok := m.hubs[hubID]
	m.mu.RUnlock()
	if !ok {
		return PollResult{}, fmt.Errorf("%w: %s", ErrHubNotFound, hubID)
	}
	return h.poller.Poll(ctx), nil
}

// RefreshAll polls every hub concurrently. One hub's failure never
// aborts the others; each hub's outcome is reported in the returned map.
func (m *Manager) RefreshAll(ctx context.Context) map[string]PollResult {
	m.mu.RLock()
	hubs := make([]*managedHub, 0, len(m.hubs))
	for _, h := range m.hubs {
		hubs = append(hubs, h)
	}
	m.mu.RUnlock()

	results := make(map[string]PollResult, len(hubs))
	var resultsMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(8)
	for _, h := range hubs {
		h := h
		g.Go(func() error {
			res := h.poller.Poll(ctx)
			resultsMu.Lock()
			results[h.cfg.ID] = res
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Settings returns a copy of the current global settings.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.settings
	s.Hubs = append([]HubConfig(nil), m.settings.Hubs...)
	return s
}

// UpdateSettings applies a partial update to the global settings and
// persists them. A grace-period change applies to connections built after
// the update; existing connections keep their window.
func (m *Manager) UpdateSettings(ctx context.Context, patch SettingsPatch) error {
	m.mu.Lock()
	if patch.DefaultPollInterval != nil {
		m.settings.DefaultPollInterval = *patch.DefaultPollInterval
	}
	if patch.GracePeriod != nil {
		m.settings.GracePeriod = *patch.GracePeriod
	}
	if patch.DebugMode != nil {
		m.settings.DebugMode = *patch.DebugMode
	}
	snapshot := m.settings
	m.mu.Unlock()

	if err := m.store.SaveGlobals(ctx, snapshot); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	return nil
}

// Subscribe registers an event listener. Events from every hub arrive on
// the returned channel; a listener that falls behind has events dropped
// rather than blocking the engine. The cancel function unregisters the
// listener and closes the channel.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// handleEvent maintains the routing index from device lifecycle events
// and fans every event out to subscribers.
func (m *Manager) handleEvent(e Event) {
	m.mu.Lock()
	switch ev := e.(type) {
	case DeviceAdded:
		if owner, exists := m.routes[ev.Device.ID]; exists && owner != ev.HubID {
			m.logWarn("device id collision, keeping first route",
				"device", ev.Device.ID, "owner", owner, "duplicate", ev.HubID)
		} else {
			m.routes[ev.Device.ID] = ev.HubID
		}
	case DeviceRemoved:
		if m.routes[ev.DeviceID] == ev.HubID {
			delete(m.routes, ev.DeviceID)
		}
	}
	subs := make([]chan Event, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			m.logWarn("event dropped, subscriber buffer full", "type", e.Type(), "hub", e.Hub())
		}
	}
}

// removeHubEntry rolls a hub registration back after a persistence
// failure during AddHub.
func (m *Manager) removeHubEntry(hubID string) {
	m.mu.Lock()
	delete(m.hubs, hubID)
	m.dropSettingsHubLocked(hubID)
	m.mu.Unlock()
}

// purgeRoutesLocked deletes every routing entry owned by a hub. Caller
// must hold m.mu.
func (m *Manager) purgeRoutesLocked(hubID string) {
	for deviceID, owner := range m.routes {
		if owner == hubID {
			delete(m.routes, deviceID)
		}
	}
}

// dropSettingsHubLocked removes a hub from the in-memory settings copy.
// Caller must hold m.mu.
func (m *Manager) dropSettingsHubLocked(hubID string) {
	for i, cfg := range m.settings.Hubs {
		if cfg.ID == hubID {
			m.settings.Hubs = append(m.settings.Hubs[:i], m.settings.Hubs[i+1:]...)
			return
		}
	}
}

// replaceSettingsHubLocked updates a hub's entry in the in-memory
// settings copy. Caller must hold m.mu.
func (m *Manager) replaceSettingsHubLocked(cfg HubConfig) {
	for i := range m.settings.Hubs {
		if m.settings.Hubs[i].ID == cfg.ID {
			m.settings.Hubs[i] = cfg
			return
		}
	}
	m.settings.Hubs = append(m.settings.Hubs, cfg)
}

// Close shuts the Manager down: pollers stop, connections disconnect and
// subscriber channels close. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	hubs := make([]*managedHub, 0, len(m.hubs))
	for _, h := range m.hubs {
		hubs = append(hubs, h)
	}
	m.mu.Unlock()

	m.startWG.Wait()

	var g errgroup.Group
	for _, h := range hubs {
		h := h
		g.Go(func() error {
			h.poller.Stop()
			h.conn.Disconnect()
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()

	m.logInfo("manager closed")
	return nil
}

// logDebug logs a debug message if a logger is set.
func (m *Manager) logDebug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

// logInfo logs an info message if a logger is set.
func (m *Manager) logInfo(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Info(msg, args...)
	}
}

// logWarn logs a warning if a logger is set.
func (m *Manager) logWarn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}
