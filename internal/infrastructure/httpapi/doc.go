// Package httpapi provides the HTTP transport to the IBM Watson IoT Platform.
//
// It shares the MQTT transport's contract (Connect, Disconnect and codec
// module access) so calling code can switch transports through
// configuration alone. Connect and Disconnect are no-ops.
//
// Events are POSTed to
//
//	{base}/api/v0002/device/types/{type}/devices/{id}/events/{event}
//
// with the body encoded by the codec registered for the message format and
// a Content-Type chosen by ContentType.
//
// # Usage
//
//	client, err := httpapi.New(cfg, logger, httpapi.WithCodecRegistry(reg))
//	if err != nil {
//	    return err
//	}
//	err = client.PublishEvent(ctx, "sensor", "s-01", "status", "json",
//	    iotf.NewMessage(map[string]any{"cpu": 12}))
//
// # Error Handling
//
// A non-2xx answer is an *iotf.Error of kind APIFailure carrying the
// status code and response body; a transport failure is ConnectionFailure.
package httpapi
