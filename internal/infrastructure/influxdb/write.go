package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceState records one device's property map as a point in the
// device_state measurement. Numeric and boolean properties become
// fields; strings are written as-is so mode-style properties (thermostat
// mode, lock state) remain queryable.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteDeviceState("hub-garage", "thermostat-01", "thermostat",
//	    map[string]any{"temperature": 21.5, "heating": true})
func (c *Client) WriteDeviceState(hubID, deviceID, category string, props map[string]any) {
	if !c.IsConnected() || len(props) == 0 {
		return
	}

	fields := make(map[string]interface{}, len(props))
	for name, value := range props {
		switch v := value.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64, bool, string:
			fields[name] = v
		default:
			// Nested structures don't map onto line-protocol fields.
		}
	}
	if len(fields) == 0 {
		return
	}

	point := write.NewPoint(
		"device_state",
		map[string]string{
			"hub_id":    hubID,
			"device_id": deviceID,
			"category":  category,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteHubStatus records one hub's connection health in the hub_status
// measurement: its state, cached device count and retry count.
func (c *Client) WriteHubStatus(hubID, state string, deviceCount, retryCount int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"hub_status",
		map[string]string{
			"hub_id": hubID,
			"state":  state,
		},
		map[string]interface{}{
			"device_count": deviceCount,
			"retry_count":  retryCount,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePollDuration records how long one poll cycle took, tagged by
// outcome, for tracking slow or degrading hubs.
func (c *Client) WritePollDuration(hubID string, success bool, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	outcome := "success"
	if !success {
		outcome = "failure"
	}

	point := write.NewPoint(
		"poll_duration",
		map[string]string{
			"hub_id":  hubID,
			"outcome": outcome,
		},
		map[string]interface{}{
			"millis": float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
