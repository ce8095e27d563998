package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with empty or nil option values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRegistry(registry),
			)

			Convey("Then the defaults stay in place", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording buffer metrics", func() {
			So(func() {
				RecordEventIngested()
				RecordEventDuplicate()
				RecordEventMalformed()
				RecordEventEvicted()
				UpdateBufferSize(42)
				UpdateBufferSize(0)
			}, ShouldNotPanic)
		})

		Convey("When recording snapshot metrics", func() {
			So(func() {
				RecordSnapshotApplied()
				RecordSnapshotStale()
				UpdateSnapshotSequence(100)
			}, ShouldNotPanic)
		})

		Convey("When recording poll cycle metrics", func() {
			So(func() {
				RecordPollSuccess()
				RecordPollFailure()
				UpdateConsecutivePollFailures(3)
				UpdateConsecutivePollFailures(0)
				UpdateDegraded(true)
				UpdateDegraded(false)
			}, ShouldNotPanic)
		})

		Convey("When recording push stream metrics", func() {
			So(func() {
				RecordPushMessage("combat_event")
				RecordPushMessage("stats_update")
				RecordPushDropped()
				RecordPushReconnect()
			}, ShouldNotPanic)
		})

		Convey("When recording dispute and intervention metrics", func() {
			So(func() {
				RecordDisputeFiled()
				RecordDisputeResolved("resolved")
				RecordDisputeResolved("rejected")
				RecordInterventionDispatched("pause")
				RecordInterventionConflict()
				RecordInterventionFailed()
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			So(func() {
				RecordHTTPRequest("events", "GET", "200")
				RecordHTTPRequest("disputes", "POST", "201")
				RecordHTTPRequestDuration("events", "GET", "200", 5.0)
				RecordHTTPRequestDuration("", "", "200", 0.0)
			}, ShouldNotPanic)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent metric recording", t, func() {
		done := make(chan bool, 8)

		for i := 0; i < 8; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					RecordEventIngested()
					UpdateBufferSize(j)
					RecordPushMessage("combat_event")
					RecordHTTPRequest("events", "GET", "200")
				}
				done <- true
			}()
		}

		for i := 0; i < 8; i++ {
			<-done
		}

		Convey("Then it should handle concurrent access without panics", func() {
			So(true, ShouldBeTrue)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		registry := GetRegistry()

		Convey("Then it gathers the monitor metric families", func() {
			So(registry, ShouldNotBeNil)

			families, err := registry.Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}
