package hub

import (
	"encoding/json"
	"fmt"
	"time"
)

// HubConfig identifies and configures one hub. ID is immutable for the
// process lifetime and uniquely identifies one Connection.
type HubConfig struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	UseHTTPS     bool          `json:"use_https"`
	APIKey       string        `json:"api_key"`
	PollInterval time.Duration `json:"poll_interval,omitempty"` // zero = use the global default
}

// ConnectionState is the lifecycle state of a Connection.
// Exactly one Connection exists per HubConfig; the state is exclusively
// owned and mutated by that Connection.
type ConnectionState string

// Connection states.
const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateOffline      ConnectionState = "offline"
)

// Settings is the only data persisted across restarts. The hub list within
// it is the durable source of truth for Manager.Initialize.
type Settings struct {
	Hubs                []HubConfig   `json:"hubs"`
	DefaultPollInterval time.Duration `json:"default_poll_interval"`
	GracePeriod         time.Duration `json:"grace_period"`
	DebugMode           bool          `json:"debug_mode"`
}

// SettingsPatch carries partial updates for UpdateSettings. Nil fields are
// left unchanged.
type SettingsPatch struct {
	DefaultPollInterval *time.Duration `json:"default_poll_interval,omitempty"`
	GracePeriod         *time.Duration `json:"grace_period,omitempty"`
	DebugMode           *bool          `json:"debug_mode,omitempty"`
}

// HubPatch carries partial updates for UpdateHub. Nil fields are left
// unchanged. Host, Port, UseHTTPS and APIKey are connection-affecting: a
// patch touching any of them forces a full reconnect (remove then add).
type HubPatch struct {
	Name         *string        `json:"name,omitempty"`
	Host         *string        `json:"host,omitempty"`
	Port         *int           `json:"port,omitempty"`
	UseHTTPS     *bool          `json:"use_https,omitempty"`
	APIKey       *string        `json:"api_key,omitempty"`
	PollInterval *time.Duration `json:"poll_interval,omitempty"`
}

// Category is the device category discriminator. Device properties are a
// closed set of per-category variant structs dispatched on this value.
type Category string

// Device categories.
const (
	CategoryLight      Category = "light"
	CategorySwitch     Category = "switch"
	CategorySensor     Category = "sensor"
	CategoryThermostat Category = "thermostat"
	CategoryCover      Category = "cover"
	CategoryLock       Category = "lock"
	CategoryCamera     Category = "camera"
)

// AllCategories returns all valid category values.
func AllCategories() []Category {
	return []Category{
		CategoryLight, CategorySwitch, CategorySensor,
		CategoryThermostat, CategoryCover, CategoryLock, CategoryCamera,
	}
}

// Properties is the typed property set of a device. Each category provides
// its own variant struct; PropertyMap enumerates the populated properties
// explicitly (optional fields are omitted when nil) so the diff can operate
// over the union of property names without reflecting over struct fields.
type Properties interface {
	Category() Category
	PropertyMap() map[string]any
	Clone() Properties
}

// Device is one hub-scoped device record. Owned exclusively by a
// Connection's device cache; callers always receive independent copies.
type Device struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Category        Category   `json:"category"`
	Online          bool       `json:"online"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	Props           Properties `json:"-"`
}

// Clone creates an independent copy of the device, including its property
// variant. Essential for cache isolation.
func (d *Device) Clone() Device {
	cpy := *d
	if d.Props != nil {
		cpy.Props = d.Props.Clone()
	}
	return cpy
}

// deviceJSON is the wire representation of a Device. The properties object
// is decoded into the category's variant struct.
type deviceJSON struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        Category        `json:"category"`
	Online          bool            `json:"online"`
	FirmwareVersion string          `json:"firmware_version,omitempty"`
	Properties      json.RawMessage `json:"properties,omitempty"`
}

// MarshalJSON encodes the device with its properties under "properties".
func (d Device) MarshalJSON() ([]byte, error) {
	out := deviceJSON{
		ID:              d.ID,
		Name:            d.Name,
		Category:        d.Category,
		Online:          d.Online,
		FirmwareVersion: d.FirmwareVersion,
	}
	if d.Props != nil {
		raw, err := json.Marshal(d.Props)
		if err != nil {
			return nil, fmt.Errorf("encoding properties: %w", err)
		}
		out.Properties = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the device, dispatching the properties object to the
// variant struct for the declared category.
func (d *Device) UnmarshalJSON(data []byte) error {
	var in deviceJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	d.ID = in.ID
	d.Name = in.Name
	d.Category = in.Category
	d.Online = in.Online
	d.FirmwareVersion = in.FirmwareVersion
	d.Props = nil

	if len(in.Properties) == 0 {
		return nil
	}

	props, err := newProperties(in.Category)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(in.Properties, props); err != nil {
		return fmt.Errorf("decoding %s properties: %w", in.Category, err)
	}
	d.Props = props
	return nil
}

// newProperties returns a zero-valued variant struct for the category.
func newProperties(cat Category) (Properties, error) {
	switch cat {
	case CategoryLight:
		return &LightProps{}, nil
	case CategorySwitch:
		return &SwitchProps{}, nil
	case CategorySensor:
		return &SensorProps{}, nil
	case CategoryThermostat:
		return &ThermostatProps{}, nil
	case CategoryCover:
		return &CoverProps{}, nil
	case CategoryLock:
		return &LockProps{}, nil
	case CategoryCamera:
		return &CameraProps{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
}

// PropertyChange records one differing property between two snapshots of
// the same device id.
type PropertyChange struct {
	Property string `json:"property"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// DeviceStateChange is emitted at most once per poll per device with at
// least one changed property.
type DeviceStateChange struct {
	HubID     string           `json:"hub_id"`
	Device    Device           `json:"device"`
	Changes   []PropertyChange `json:"changes"`
	Timestamp time.Time        `json:"timestamp"`
}

// PollResult is the transient outcome of one poll cycle. Not persisted.
type PollResult struct {
	Success  bool                `json:"success"`
	Devices  []Device            `json:"devices,omitempty"`
	Err      error               `json:"-"`
	Changes  []DeviceStateChange `json:"changes,omitempty"`
	Duration time.Duration       `json:"duration"`
}

// HubInfo captures hub identity and granted permissions at connect time.
type HubInfo struct {
	Serial      string   `json:"serial"`
	Model       string   `json:"model"`
	Firmware    string   `json:"firmware"`
	Permissions []string `json:"permissions"`
}

// HasPermission reports whether the hub granted the named permission.
func (i *HubInfo) HasPermission(name string) bool {
	if i == nil {
		return false
	}
	for _, p := range i.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// PermissionSnapshot must be granted at connect time for Snapshot calls.
const PermissionSnapshot = "snapshot"

// HubStatus is a point-in-time snapshot of one Connection's health.
type HubStatus struct {
	HubID       string          `json:"hub_id"`
	Name        string          `json:"name"`
	State       ConnectionState `json:"state"`
	LastError   string          `json:"last_error,omitempty"`
	LastPoll    time.Time       `json:"last_poll,omitempty"`
	DeviceCount int             `json:"device_count"`
	RetryCount  int             `json:"retry_count"`
	Info        *HubInfo        `json:"info,omitempty"`
}

// CompositeID forms the cross-hub device identifier. Device identity is
// hub-scoped; two hubs may legitimately report the same raw id.
func CompositeID(hubID, deviceID string) string {
	return hubID + ":" + deviceID
}
