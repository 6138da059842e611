package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating options", func() {
			namespaceOpt := WithNamespace("test-namespace")
			subsystemOpt := WithSubsystem("test-subsystem")
			bucketsOpt := WithHistogramBuckets([]float64{0.1, 0.5, 1.0})
			enabledOpt := WithMetricsEnabled(true)

			Convey("Then they should be valid functions", func() {
				So(namespaceOpt, ShouldNotBeNil)
				So(subsystemOpt, ShouldNotBeNil)
				So(bucketsOpt, ShouldNotBeNil)
				So(enabledOpt, ShouldNotBeNil)
			})
		})
	})
}

func TestManagerCreation(t *testing.T) {
	Convey("Given a metrics manager", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

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
				WithMetricsEnabled(true),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})
	})
}

func TestPackageHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording metrics through package helpers", func() {
			So(func() {
				RecordEventRecorded()
				RecordEventDropped("whitelist")
				UpdateQueueSize(3)
				UpdateQueueCapacity(100)
				RecordQueueAppend()
				RecordQueueReject()
				RecordQueueSwap()
				RecordUploadAttempt()
				RecordUploadCycle("success")
				RecordUploadLatency(12.5)
				RecordUploadBatchSize(3)
				UpdateUploadInFlight(true)
				UpdateUploadInFlight(false)
				RecordEngageCacheHit()
				RecordEngageCacheMiss()
				RecordEngageRequest("network")
				RecordTriggerEvaluation()
				RecordTriggerMatch()
				RecordActionRead()
				RecordActionWrite()
				RecordErrorByComponent("queue", "capacity")
			}, ShouldNotPanic)
		})

		Convey("When reading the global registry", func() {
			So(Registry(), ShouldNotBeNil)
		})
	})
}
