package hub

// The per-category property variants below form a closed set. Optional
// fields are pointers and are omitted from PropertyMap when nil, so a
// property that a hub stops reporting disappears from the map and surfaces
// as a change against the previous snapshot.

// clonePtr copies an optional field so cached records never share storage
// with caller-visible snapshots.
func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// LightProps describes dimmable and colour-capable lights.
type LightProps struct {
	On         bool     `json:"on"`
	Brightness *int     `json:"brightness,omitempty"` // 0-100
	ColorTemp  *int     `json:"color_temp,omitempty"` // mireds
	Hue        *float64 `json:"hue,omitempty"`        // 0-360
	Saturation *float64 `json:"saturation,omitempty"` // 0-100
}

func (p *LightProps) Category() Category { return CategoryLight }

func (p *LightProps) PropertyMap() map[string]any {
	m := map[string]any{"on": p.On}
	if p.Brightness != nil {
		m["brightness"] = *p.Brightness
	}
	if p.ColorTemp != nil {
		m["color_temp"] = *p.ColorTemp
	}
	if p.Hue != nil {
		m["hue"] = *p.Hue
	}
	if p.Saturation != nil {
		m["saturation"] = *p.Saturation
	}
	return m
}

func (p *LightProps) Clone() Properties {
	cpy := *p
	cpy.Brightness = clonePtr(p.Brightness)
	cpy.ColorTemp = clonePtr(p.ColorTemp)
	cpy.Hue = clonePtr(p.Hue)
	cpy.Saturation = clonePtr(p.Saturation)
	return &cpy
}

// SwitchProps describes relays and smart plugs.
type SwitchProps struct {
	On         bool     `json:"on"`
	PowerWatts *float64 `json:"power_watts,omitempty"`
}

func (p *SwitchProps) Category() Category { return CategorySwitch }

func (p *SwitchProps) PropertyMap() map[string]any {
	m := map[string]any{"on": p.On}
	if p.PowerWatts != nil {
		m["power_watts"] = *p.PowerWatts
	}
	return m
}

func (p *SwitchProps) Clone() Properties {
	cpy := *p
	cpy.PowerWatts = clonePtr(p.PowerWatts)
	return &cpy
}

// SensorProps describes multi-purpose sensors. Every field is optional; a
// given sensor reports only the measurements it supports.
type SensorProps struct {
	Temperature *float64 `json:"temperature,omitempty"` // celsius
	Humidity    *float64 `json:"humidity,omitempty"`    // percent
	Illuminance *float64 `json:"illuminance,omitempty"` // lux
	Motion      *bool    `json:"motion,omitempty"`
	Contact     *bool    `json:"contact,omitempty"` // true = closed
	Battery     *int     `json:"battery,omitempty"` // percent
}

func (p *SensorProps) Category() Category { return CategorySensor }

func (p *SensorProps) PropertyMap() map[string]any {
	m := make(map[string]any)
	if p.Temperature != nil {
		m["temperature"] = *p.Temperature
	}
	if p.Humidity != nil {
		m["humidity"] = *p.Humidity
	}
	if p.Illuminance != nil {
		m["illuminance"] = *p.Illuminance
	}
	if p.Motion != nil {
		m["motion"] = *p.Motion
	}
	if p.Contact != nil {
		m["contact"] = *p.Contact
	}
	if p.Battery != nil {
		m["battery"] = *p.Battery
	}
	return m
}

func (p *SensorProps) Clone() Properties {
	cpy := *p
	cpy.Temperature = clonePtr(p.Temperature)
	cpy.Humidity = clonePtr(p.Humidity)
	cpy.Illuminance = clonePtr(p.Illuminance)
	cpy.Motion = clonePtr(p.Motion)
	cpy.Contact = clonePtr(p.Contact)
	cpy.Battery = clonePtr(p.Battery)
	return &cpy
}

// ThermostatProps describes heating/cooling controllers.
type ThermostatProps struct {
	Mode        string   `json:"mode"` // off, heat, cool, auto
	Temperature *float64 `json:"temperature,omitempty"`
	Setpoint    *float64 `json:"setpoint,omitempty"`
	Heating     *bool    `json:"heating,omitempty"`
}

func (p *ThermostatProps) Category() Category { return CategoryThermostat }

func (p *ThermostatProps) PropertyMap() map[string]any {
	m := map[string]any{"mode": p.Mode}
	if p.Temperature != nil {
		m["temperature"] = *p.Temperature
	}
	if p.Setpoint != nil {
		m["setpoint"] = *p.Setpoint
	}
	if p.Heating != nil {
		m["heating"] = *p.Heating
	}
	return m
}

func (p *ThermostatProps) Clone() Properties {
	cpy := *p
	cpy.Temperature = clonePtr(p.Temperature)
	cpy.Setpoint = clonePtr(p.Setpoint)
	cpy.Heating = clonePtr(p.Heating)
	return &cpy
}

// CoverProps describes blinds, shades and garage doors.
type CoverProps struct {
	Position int   `json:"position"` // 0 = closed, 100 = open
	Moving   *bool `json:"moving,omitempty"`
	Tilt     *int  `json:"tilt,omitempty"`
}

func (p *CoverProps) Category() Category { return CategoryCover }

func (p *CoverProps) PropertyMap() map[string]any {
	m := map[string]any{"position": p.Position}
	if p.Moving != nil {
		m["moving"] = *p.Moving
	}
	if p.Tilt != nil {
		m["tilt"] = *p.Tilt
	}
	return m
}

func (p *CoverProps) Clone() Properties {
	cpy := *p
	cpy.Moving = clonePtr(p.Moving)
	cpy.Tilt = clonePtr(p.Tilt)
	return &cpy
}

// LockProps describes door locks.
type LockProps struct {
	Locked  bool  `json:"locked"`
	Jammed  *bool `json:"jammed,omitempty"`
	Battery *int  `json:"battery,omitempty"`
}

func (p *LockProps) Category() Category { return CategoryLock }

func (p *LockProps) PropertyMap() map[string]any {
	m := map[string]any{"locked": p.Locked}
	if p.Jammed != nil {
		m["jammed"] = *p.Jammed
	}
	if p.Battery != nil {
		m["battery"] = *p.Battery
	}
	return m
}

func (p *LockProps) Clone() Properties {
	cpy := *p
	cpy.Jammed = clonePtr(p.Jammed)
	cpy.Battery = clonePtr(p.Battery)
	return &cpy
}

// CameraProps describes cameras. Snapshot retrieval itself goes through the
// Connection, not the property set.
type CameraProps struct {
	Recording      bool  `json:"recording"`
	MotionDetected *bool `json:"motion_detected,omitempty"`
	NightVision    *bool `json:"night_vision,omitempty"`
}

func (p *CameraProps) Category() Category { return CategoryCamera }

func (p *CameraProps) PropertyMap() map[string]any {
	m := map[string]any{"recording": p.Recording}
	if p.MotionDetected != nil {
		m["motion_detected"] = *p.MotionDetected
	}
	if p.NightVision != nil {
		m["night_vision"] = *p.NightVision
	}
	return m
}

func (p *CameraProps) Clone() Properties {
	cpy := *p
	cpy.MotionDetected = clonePtr(p.MotionDetected)
	cpy.NightVision = clonePtr(p.NightVision)
	return &cpy
}
