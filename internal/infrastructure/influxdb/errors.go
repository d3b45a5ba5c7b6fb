package influxdb

import "errors"

// Sentinel errors for history storage; match with errors.Is. Most
// write failures surface asynchronously through SetOnError instead.
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
