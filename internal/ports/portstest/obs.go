// Package portstest provides in-memory fakes of the ports for tests.
package portstest

import (
	"sync"

	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// Obs records everything reported through ports.Observability.
type Obs struct {
	mu       sync.Mutex
	counters map[string]float64
	gauges   map[string]float64
	drops    []string
	errs     []string
	jobs     map[string]int
	failed   map[string]int
	skipped  map[string]int
}

func NewObs() *Obs {
	return &Obs{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
		jobs:     make(map[string]int),
		failed:   make(map[string]int),
		skipped:  make(map[string]int),
	}
}

func (o *Obs) LogInfo(string, ...ports.Field) {}

func (o *Obs) LogError(msg string, _ error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, msg)
}

func (o *Obs) LogCritical(msg string, err error, fields ...ports.Field) {
	o.LogError(msg, err, fields...)
}

func (o *Obs) IncCounter(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counters[name] += v
}

func (o *Obs) ObserveLatency(string, float64) {}

func (o *Obs) SetGauge(name string, v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gauges[name] = v
}

func (o *Obs) RecordDrop(topic string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drops = append(o.drops, topic)
}

func (o *Obs) RecordJob(job string, _ float64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobs[job]++
	if err != nil {
		o.failed[job]++
	}
}

func (o *Obs) RecordJobSkipped(job, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped[job+"/"+reason]++
}

func (o *Obs) Counter(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counters[name]
}

func (o *Obs) Gauge(name string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gauges[name]
}

func (o *Obs) Drops() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.drops...)
}

func (o *Obs) Errors() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.errs...)
}

// Runs returns how many runs of job finished and how many of those failed.
func (o *Obs) Runs(job string) (total, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jobs[job], o.failed[job]
}

func (o *Obs) Skipped(job, reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.skipped[job+"/"+reason]
}

var _ ports.Observability = (*Obs)(nil)
