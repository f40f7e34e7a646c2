package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	// RecordDrop counts a transport message discarded before reaching the store.
	RecordDrop(topic string, err error)

	// RecordJob reports one finished scheduled run; err is nil on success.
	RecordJob(job string, seconds float64, err error)
	// RecordJobSkipped counts a tick that did not start a run.
	RecordJobSkipped(job, reason string)
}

type Field struct {
	Key   string
	Value any
}
