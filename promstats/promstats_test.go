package promstats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	scheduler "github.com/gocronforge/dbscheduler"
)

func TestSink_Report_IncrementsByKindAndTask(t *testing.T) {
	registry := prometheus.NewRegistry()
	sink := New(registry, Config{Namespace: "dbscheduler"})

	sink.Report(scheduler.Event{Kind: scheduler.EventCompleted, TaskName: "send-welcome", InstanceID: "u1"})
	sink.Report(scheduler.Event{Kind: scheduler.EventCompleted, TaskName: "send-welcome", InstanceID: "u2"})
	sink.Report(scheduler.Event{Kind: scheduler.EventFailed, TaskName: "send-welcome", InstanceID: "u3"})

	require.Equal(t, float64(2), testutil.ToFloat64(sink.events.WithLabelValues("completed", "send-welcome")))
	require.Equal(t, float64(1), testutil.ToFloat64(sink.events.WithLabelValues("failed", "send-welcome")))
}

func TestNew_DefaultsSubsystem(t *testing.T) {
	registry := prometheus.NewRegistry()
	sink := New(registry, Config{})
	sink.Report(scheduler.Event{Kind: scheduler.EventDead, TaskName: "t"})

	gathered, err := registry.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, gathered)
	require.Equal(t, "scheduler_events_total", *gathered[0].Name)
}
