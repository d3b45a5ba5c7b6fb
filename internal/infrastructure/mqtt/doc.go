// Package mqtt publishes engine state to an MQTT broker.
//
// HubLink uses MQTT as an outbound mirror only: hub connectivity,
// device state and engine events are published as retained messages so
// dashboards and automations see a live picture without polling the
// REST API. Nothing is consumed from the broker, so the client has no
// subscription surface. The mirror is optional; the engine runs fine
// without a broker.
//
//	HubLink Engine → MQTT Broker → Dashboards / Automations
//
// A last-will message on hublink/system/status distinguishes a crash
// from a graceful shutdown, and paho's auto-reconnect keeps the mirror
// alive across broker restarts.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.DeviceState("hub-garage", "light-01")
//	client.PublishRetained(topic, stateJSON)
package mqtt
