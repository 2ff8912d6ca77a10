// Package mqtt provides MQTT client connectivity for the Teslemetry bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is the bus between Gray Logic Core and its protocol bridges. This
// bridge publishes capability state and accepts capability commands:
//
//	Gray Logic Core ↔ MQTT Broker ↔ Teslemetry bridge ↔ Teslemetry cloud
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("teslemetry"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(mqtt.LastSegment(topic), payload)
//	    })
package mqtt
