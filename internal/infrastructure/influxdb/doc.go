// Package influxdb writes sensor history to InfluxDB v2.
//
// A History observes messages the gateway publishes and turns readings
// into points of the "sensor_readings" measurement:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	runner.AddObserver(influxdb.NewHistory(client))
//
// Writes are batched according to batch_size and flush_interval.
package influxdb
