package domain

import (
	"fmt"
	"strings"
	"time"
)

type Operator string

const (
	OpGT Operator = ">"
	OpGE Operator = ">="
	OpLT Operator = "<"
	OpLE Operator = "<="
	OpEQ Operator = "=="
)

// Compare applies the operator to value and threshold. Equality is exact:
// no epsilon is applied, so "==" only fires on bit-identical values.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGT:
		return value > threshold
	case OpGE:
		return value >= threshold
	case OpLT:
		return value < threshold
	case OpLE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	default:
		return false
	}
}

func (o Operator) Valid() bool {
	switch o {
	case OpGT, OpGE, OpLT, OpLE, OpEQ:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// RuleScope selects which entities a rule is matched against.
type RuleScope string

const (
	RuleScopeCity      RuleScope = "city"
	RuleScopeZone      RuleScope = "zone"
	RuleScopeSegment   RuleScope = "segment"
	RuleScopeAssetType RuleScope = "asset_type"
)

func (s RuleScope) Valid() bool {
	switch s {
	case RuleScopeCity, RuleScopeZone, RuleScopeSegment, RuleScopeAssetType:
		return true
	}
	return false
}

// SegmentScoped reports whether the rule is evaluated against per-segment snapshots.
func (s RuleScope) SegmentScoped() bool {
	return s == RuleScopeCity || s == RuleScopeZone || s == RuleScopeSegment
}

// AlertRule is a threshold rule over a snapshot metric.
type AlertRule struct {
	ID        string    `json:"id"`
	Metric    string    `json:"metric"`
	Operator  Operator  `json:"operator"`
	Threshold float64   `json:"threshold"`
	Severity  Severity  `json:"severity"`
	Scope     RuleScope `json:"scope"`
	CityID    string    `json:"city_id,omitempty"`
	ZoneID    string    `json:"zone_id,omitempty"`
	AssetType string    `json:"asset_type,omitempty"`
}

// Normalize trims identifiers, canonicalizes the metric name and validates
// every enumerated field. Unknown metrics are rejected here rather than
// skipped later by the evaluator.
func (r *AlertRule) Normalize() error {
	ve := &ValidationError{}
	r.CityID = strings.TrimSpace(r.CityID)
	r.ZoneID = strings.TrimSpace(r.ZoneID)
	r.AssetType = strings.TrimSpace(r.AssetType)

	if canon, err := CanonicalMetric(r.Metric); err != nil {
		ve.Add("metric", fmt.Sprintf("unknown metric %q", r.Metric))
	} else {
		r.Metric = canon
	}
	if !r.Operator.Valid() {
		ve.Add("operator", "must be one of >, >=, <, <=, ==")
	}
	if !r.Severity.Valid() {
		ve.Add("severity", "must be one of low, medium, high, critical")
	}
	if !r.Scope.Valid() {
		ve.Add("scope", "must be one of city, zone, segment, asset_type")
	}
	if r.Scope == RuleScopeZone && r.ZoneID == "" {
		ve.Add("zone_id", "required for zone scope")
	}
	if r.Scope == RuleScopeAssetType && r.AssetType == "" {
		ve.Add("asset_type", "required for asset_type scope")
	}
	return ve.OrNil()
}

type EventStatus string

const (
	StatusOpen         EventStatus = "open"
	StatusAcknowledged EventStatus = "acknowledged"
	StatusClosed       EventStatus = "closed"
)

// Active reports whether the status counts against the one-active-event rule.
func (s EventStatus) Active() bool {
	return s == StatusOpen || s == StatusAcknowledged
}

func (s EventStatus) Valid() bool {
	return s == StatusOpen || s == StatusAcknowledged || s == StatusClosed
}

// AlertEvent is one breach occurrence of a rule for a segment.
type AlertEvent struct {
	ID             string      `json:"id"`
	RuleID         string      `json:"rule_id"`
	Metric         string      `json:"metric"`
	Severity       Severity    `json:"severity"`
	Scope          RuleScope   `json:"scope"`
	CityID         string      `json:"city_id,omitempty"`
	ZoneID         string      `json:"zone_id,omitempty"`
	SegmentID      string      `json:"segment_id,omitempty"`
	Status         EventStatus `json:"status"`
	OpenedAt       time.Time   `json:"opened_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	ClosedAt       *time.Time  `json:"closed_at,omitempty"`
	Actor          string      `json:"actor,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	Value          float64     `json:"value"`
}

// EventAction is an external request to move an event along its lifecycle.
type EventAction struct {
	Status EventStatus
	Actor  string
	Notes  string
}

// Transition applies the action to ev in place.
//
//	open         -> acknowledged | closed
//	acknowledged -> closed
//	closed       -> (terminal)
//
// A rejected action leaves ev untouched.
func (ev *AlertEvent) Transition(act EventAction, now time.Time) error {
	if ev.Status == StatusClosed {
		return ErrEventClosed
	}
	switch act.Status {
	case StatusAcknowledged:
		if ev.Status != StatusOpen {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ev.Status, act.Status)
		}
		t := now.UTC()
		ev.AcknowledgedAt = &t
	case StatusClosed:
		t := now.UTC()
		ev.ClosedAt = &t
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, ev.Status, act.Status)
	}
	ev.Status = act.Status
	ev.Actor = act.Actor
	ev.Notes = act.Notes
	return nil
}
