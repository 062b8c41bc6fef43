// Package mqtt provides the MQTT transport to the IBM Watson IoT Platform.
//
// This package manages:
//   - Connecting with a bounded wait for the broker's acknowledgement
//   - Pairing asynchronous publish completions with caller callbacks
//   - Decoding received messages by the format named in their topic
//   - Topic subscriptions, restored after an automatic reconnect
//   - Optional SQLite persistence of in-flight QoS 1/2 packets
//
// # Connection lifecycle
//
// Connect resolves only once the on-connect callback has fired. It fails
// with an *iotf.Error of kind ConnectionTimeout when the broker stays silent
// for mqtt.connect_timeout seconds (30 by default), and of kind
// ConnectionFailure when the attempt is refused. Both name the broker
// address. Disconnect closes the connection before it stops callback
// delivery; once it returns no callback runs.
//
// # Publish acknowledgements
//
// PublishAsync returns an identifier immediately. The broker's
// acknowledgement may arrive before the caller's callback is registered;
// the PublishTracker handles either order and invokes every callback
// exactly once.
//
// # Security Considerations
//
//   - TLS is on by default, pinned to the configured version
//   - Token credentials are sent with the "use-token-auth" username
//   - Disabling TLS logs a warning
//
// # Usage
//
//	client, err := mqtt.New(cfg, logger, mqtt.WithCodecRegistry(reg))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
//	_, err = client.PublishEvent("status", "json", iotf.NewMessage(map[string]any{"cpu": 12}), 1,
//	    func(err error) {
//	        if err != nil {
//	            logger.Error("publish failed", "error", err)
//	        }
//	    })
package mqtt
