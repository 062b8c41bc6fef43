// Package influxdb exports IoT client statistics to InfluxDB.
//
// Each snapshot of a client's counters becomes one point in the
// client_stats measurement, tagged with the client ID. Points are batched
// by the non-blocking write API of influxdb-client-go v2.
//
// # Usage
//
//	influx, err := influxdb.Connect(ctx, cfg.InfluxDB, logger)
//	if err != nil {
//	    return err
//	}
//	defer influx.Close()
//
//	client, err := mqtt.New(cfg, logger, mqtt.WithStatsRecorder(influx))
//
// The MQTT client also calls HealthCheck from its own HealthCheck.
//
// # Error Handling
//
// Write failures never reach the caller. Rejected batches are logged with
// ErrExportFailed; batches failing with a retryable status are dropped and
// logged with the client IDs they carried, since the next snapshot holds
// the same cumulative counters.
package influxdb
