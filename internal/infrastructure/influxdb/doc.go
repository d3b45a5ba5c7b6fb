// Package influxdb records engine history as time series.
//
// Three measurements cover the engine's history needs: device_state
// for every observed property change, hub_status for connection health
// over time and poll_duration for spotting degrading hubs. Writes are
// batched and non-blocking so a slow server never stalls a poll;
// failures are delivered through the SetOnError callback. Like the
// MQTT mirror, the recorder is optional.
package influxdb
