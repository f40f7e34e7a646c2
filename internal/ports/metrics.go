package ports

// Metric names understood by the Observability adapter.
const (
	MetricSamplesIngested    = "thermocity_samples_ingested_total"
	MetricSamplesRejected    = "thermocity_samples_rejected_total"
	MetricSnapshots          = "thermocity_kpi_snapshots_total"
	MetricEntitiesSkipped    = "thermocity_kpi_entities_skipped_total"
	MetricEventsOpened       = "thermocity_alert_events_opened_total"
	MetricPairsSkipped       = "thermocity_alert_pairs_skipped_total"
	MetricNotifyFailures     = "thermocity_notify_failures_total"
	MetricSamplesPurged      = "thermocity_samples_purged_total"
	MetricStoreAppendLatency = "thermocity_store_append_seconds"
	MetricMQTTConnected      = "thermocity_mqtt_connected"
)
