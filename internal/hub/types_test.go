package hub

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDeviceJSON_CategoryDispatch(t *testing.T) {
	tests := []struct {
		name string
		dev  Device
	}{
		{
			name: "light",
			dev: Device{
				ID: "l1", Name: "hall light", Category: CategoryLight, Online: true,
				FirmwareVersion: "2.3",
				Props:           &LightProps{On: true, Brightness: intPtr(75), ColorTemp: intPtr(300)},
			},
		},
		{
			name: "switch",
			dev: Device{
				ID: "s1", Name: "plug", Category: CategorySwitch, Online: true,
				Props: &SwitchProps{On: false, PowerWatts: floatPtr(0.4)},
			},
		},
		{
			name: "sensor",
			dev: Device{
				ID: "m1", Name: "hall motion", Category: CategorySensor, Online: true,
				Props: &SensorProps{Motion: boolPtr(true), Battery: intPtr(77)},
			},
		},
		{
			name: "thermostat",
			dev: Device{
				ID: "t1", Name: "living room", Category: CategoryThermostat, Online: true,
				Props: &ThermostatProps{Mode: "heat", Setpoint: floatPtr(21.5), Heating: boolPtr(true)},
			},
		},
		{
			name: "cover",
			dev: Device{
				ID: "c1", Name: "blind", Category: CategoryCover, Online: false,
				Props: &CoverProps{Position: 40, Moving: boolPtr(false)},
			},
		},
		{
			name: "lock",
			dev: Device{
				ID: "k1", Name: "front door", Category: CategoryLock, Online: true,
				Props: &LockProps{Locked: true, Battery: intPtr(60)},
			},
		},
		{
			name: "camera",
			dev: Device{
				ID: "cam1", Name: "porch", Category: CategoryCamera, Online: true,
				Props: &CameraProps{Recording: true, NightVision: boolPtr(true)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.dev)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var got Device
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}

			if diff := cmp.Diff(tt.dev, got); diff != "" {
				t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
			}
			if got.Props.Category() != tt.dev.Category {
				t.Errorf("props category = %s, want %s", got.Props.Category(), tt.dev.Category)
			}
		})
	}
}

func TestDeviceJSON_UnknownCategory(t *testing.T) {
	data := []byte(`{"id":"x1","category":"toaster","properties":{"on":true}}`)
	var dev Device
	err := json.Unmarshal(data, &dev)
	if !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("err = %v, want ErrUnknownCategory", err)
	}
}

func TestDeviceJSON_NoProperties(t *testing.T) {
	data := []byte(`{"id":"x1","name":"bare","category":"light","online":true}`)
	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if dev.Props != nil {
		t.Errorf("props = %+v, want nil", dev.Props)
	}
}

func TestDeviceClone_Isolation(t *testing.T) {
	orig := Device{
		ID: "d1", Name: "lamp", Category: CategoryLight, Online: true,
		Props: &LightProps{On: true, Brightness: intPtr(50)},
	}

	clone := orig.Clone()
	clone.Props.(*LightProps).On = false
	*clone.Props.(*LightProps).Brightness = 99

	lp := orig.Props.(*LightProps)
	if !lp.On || *lp.Brightness != 50 {
		t.Errorf("original mutated through clone: %+v", lp)
	}
}

func TestHubInfo_HasPermission(t *testing.T) {
	info := &HubInfo{Permissions: []string{"read", "write"}}

	if !info.HasPermission("read") {
		t.Error("read should be granted")
	}
	if info.HasPermission(PermissionSnapshot) {
		t.Error("snapshot should not be granted")
	}

	var nilInfo *HubInfo
	if nilInfo.HasPermission("read") {
		t.Error("nil info grants nothing")
	}
}

func TestCompositeID(t *testing.T) {
	if got := CompositeID("villa", "light-1"); got != "villa:light-1" {
		t.Errorf("CompositeID = %q, want villa:light-1", got)
	}
}

func TestAllCategories_MatchesDispatch(t *testing.T) {
	for _, cat := range AllCategories() {
		props, err := newProperties(cat)
		if err != nil {
			t.Errorf("newProperties(%s): %v", cat, err)
			continue
		}
		if props.Category() != cat {
			t.Errorf("variant for %s reports %s", cat, props.Category())
		}
	}
}
