package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Metric names accepted by alert rules. Legacy names from the first
// dashboard generation are kept as aliases.
const (
	MetricHeatCaptured = "heat_captured_kw"
	MetricNetPower     = "net_power"
	MetricGrossPower   = "gross_power"
	MetricParasitic    = "parasitic_power"
	MetricPCMSOC       = "pcm_soc"

	TempMetricPrefix = "temp_"
)

type snapshotAccessor func(*KPISnapshot) *float64

func field(f func(*KPISnapshot) float64) snapshotAccessor {
	return func(k *KPISnapshot) *float64 {
		v := f(k)
		return &v
	}
}

var derivedMetrics = map[string]snapshotAccessor{
	MetricHeatCaptured: field(func(k *KPISnapshot) float64 { return k.HeatCapturedKW }),
	MetricNetPower:     field(func(k *KPISnapshot) float64 { return k.NetKW }),
	MetricGrossPower:   field(func(k *KPISnapshot) float64 { return k.GrossKW }),
	MetricParasitic:    field(func(k *KPISnapshot) float64 { return k.ParasiticKW }),
	MetricPCMSOC:       field(func(k *KPISnapshot) float64 { return k.PCMSOC }),
}

var metricAliases = map[string]string{
	"kw_net":       MetricNetPower,
	"kw_gross":     MetricGrossPower,
	"parasitic_kw": MetricParasitic,
	"heat_rate":    MetricHeatCaptured,
}

// channelMetrics resolves against the copy of the channel set on a snapshot.
var channelMetrics = map[string]snapshotAccessor{
	"flow":       func(k *KPISnapshot) *float64 { return k.Channels.Flow },
	"pressure":   func(k *KPISnapshot) *float64 { return k.Channels.Pressure },
	"kwh_total":  func(k *KPISnapshot) *float64 { return k.Channels.EnergyTotal },
	"pump_power": func(k *KPISnapshot) *float64 { return k.Channels.PumpPower },
	"fan_power":  func(k *KPISnapshot) *float64 { return k.Channels.FanPower },
	"pcm_temp":   func(k *KPISnapshot) *float64 { return k.Channels.PCMTemp },
}

// tempChannel maps the suffix after TempMetricPrefix to a temperature channel.
func tempChannel(k *KPISnapshot, key string) (*float64, bool) {
	switch key {
	case "inlet":
		return k.Channels.Temps.Inlet, true
	case "outlet":
		return k.Channels.Temps.Outlet, true
	case "surface":
		return k.Channels.Temps.Surface, true
	case "subsurface":
		return k.Channels.Temps.Subsurface, true
	default:
		return nil, false
	}
}

// CanonicalMetric normalizes a metric name and rejects names that no
// snapshot field or channel can answer.
func CanonicalMetric(name string) (string, error) {
	name = strings.TrimSpace(name)
	if alias, ok := metricAliases[name]; ok {
		name = alias
	}
	if _, ok := derivedMetrics[name]; ok {
		return name, nil
	}
	if _, ok := channelMetrics[name]; ok {
		return name, nil
	}
	if key, ok := strings.CutPrefix(name, TempMetricPrefix); ok {
		if _, known := tempChannel(&KPISnapshot{}, key); known {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, name)
}

// ResolveMetric reads the named metric from a snapshot. ok is false when the
// name is unknown or the underlying channel was not reported.
func ResolveMetric(k *KPISnapshot, name string) (float64, bool) {
	canon, err := CanonicalMetric(name)
	if err != nil {
		return 0, false
	}
	var v *float64
	if acc, found := derivedMetrics[canon]; found {
		v = acc(k)
	} else if acc, found := channelMetrics[canon]; found {
		v = acc(k)
	} else {
		v, _ = tempChannel(k, strings.TrimPrefix(canon, TempMetricPrefix))
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// KnownMetrics lists every canonical metric name, sorted.
func KnownMetrics() []string {
	out := make([]string, 0, len(derivedMetrics)+len(channelMetrics)+4)
	for k := range derivedMetrics {
		out = append(out, k)
	}
	for k := range channelMetrics {
		out = append(out, k)
	}
	for _, t := range []string{"inlet", "outlet", "surface", "subsurface"} {
		out = append(out, TempMetricPrefix+t)
	}
	sort.Strings(out)
	return out
}
