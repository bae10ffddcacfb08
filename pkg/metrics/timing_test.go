package metrics

import (
	"testing"
	"time"
)

func TestTimingMetricRecord(t *testing.T) {
	m := newTimingMetric("test")
	m.Record(10 * time.Millisecond)
	m.Record(30 * time.Millisecond)

	if m.Count() != 2 {
		t.Errorf("expected count 2, got %d", m.Count())
	}
	if m.MinNs() != (10 * time.Millisecond).Nanoseconds() {
		t.Errorf("unexpected min %d", m.MinNs())
	}
	if m.MaxNs() != (30 * time.Millisecond).Nanoseconds() {
		t.Errorf("unexpected max %d", m.MaxNs())
	}
	if m.AvgNs() != (20 * time.Millisecond).Nanoseconds() {
		t.Errorf("unexpected avg %d", m.AvgNs())
	}
}

func TestTimingMetricEmpty(t *testing.T) {
	m := newTimingMetric("empty")
	if m.AvgNs() != 0 || m.MinNs() != 0 || m.MaxNs() != 0 {
		t.Error("an empty metric must report zeros")
	}
}

func TestTimerRecords(t *testing.T) {
	m := newTimingMetric("timer")
	done := Timer(m)
	time.Sleep(5 * time.Millisecond)
	done()
	if m.Count() != 1 {
		t.Fatalf("expected one measurement, got %d", m.Count())
	}
	if m.TotalNs() < (5 * time.Millisecond).Nanoseconds() {
		t.Errorf("recorded duration too small: %dns", m.TotalNs())
	}
}

func TestDisabledSkipsRecording(t *testing.T) {
	was := Enabled()
	SetEnabled(false)
	defer SetEnabled(was)

	m := newTimingMetric("disabled")
	m.Record(time.Millisecond)
	Timer(m)()
	if m.Count() != 0 {
		t.Errorf("expected no measurements while disabled, got %d", m.Count())
	}
}

func TestReset(t *testing.T) {
	m := newTimingMetric("reset")
	m.Record(time.Millisecond)
	m.Reset()
	if m.Count() != 0 || m.TotalNs() != 0 || m.MaxNs() != 0 || m.MinNs() != 0 {
		t.Error("Reset must clear all counters")
	}
}

func TestStats(t *testing.T) {
	m := newTimingMetric("stats")
	m.Record(2 * time.Millisecond)
	s := m.Stats()
	if s.Name != "stats" || s.Count != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.TotalMs < 1.9 || s.TotalMs > 2.1 {
		t.Errorf("unexpected total %f", s.TotalMs)
	}
}
