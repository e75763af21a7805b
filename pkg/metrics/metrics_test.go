package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "skincheck")
				So(manager.subsystem, ShouldEqual, "classifier")
				So(manager.histogramBuckets, ShouldResemble, latencyBuckets)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test-namespace"),
				WithSubsystem("test-subsystem"),
				WithMetricPrefix("edge"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then options should be applied", func() {
				So(manager.namespace, ShouldEqual, "test-namespace")
				So(manager.subsystem, ShouldEqual, "test-subsystem")
				So(manager.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.name("queue_size"), ShouldEqual, "edge_queue_size")
			})

			Convey("And metrics should be registered on the custom registry", func() {
				manager.modelStatus.Set(1)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording classification outcomes", func() {
			before := testutil.ToFloat64(globalManager.classifications.WithLabelValues("success"))
			RecordClassification("success")
			RecordClassification("success")

			Convey("Then the outcome counter should grow", func() {
				after := testutil.ToFloat64(globalManager.classifications.WithLabelValues("success"))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording consistency anomalies and stale results", func() {
			anomalies := testutil.ToFloat64(globalManager.consistencyAnomalies)
			stale := testutil.ToFloat64(globalManager.staleResultsDiscarded)
			RecordConsistencyAnomaly()
			RecordStaleResultDiscarded()

			Convey("Then both counters should increment", func() {
				So(testutil.ToFloat64(globalManager.consistencyAnomalies)-anomalies, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.staleResultsDiscarded)-stale, ShouldEqual, 1)
			})
		})

		Convey("When updating model gauges", func() {
			UpdateModelStatus(ModelStatusReady)
			UpdateModelLabels(3)
			UpdateLiveTensors(0)

			Convey("Then gauges should reflect the latest value", func() {
				So(testutil.ToFloat64(globalManager.modelStatus), ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.modelLabels), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.liveTensors), ShouldEqual, 0)
			})
		})

		Convey("When recording latency, queue, worker and HTTP metrics", func() {
			So(func() {
				RecordStageLatency("decode", 1.5)
				RecordStageLatency("predict", 20)
				RecordInferenceLatency(25)
				RecordConfidence(91.0)
				UpdateModelLoadDuration(1200)
				UpdateQueueSize(1)
				UpdateQueueCapacity(16)
				UpdateQueueUtilization(1.0 / 16)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(0.1)
				UpdateWorkerCount(1)
				RecordWorkerProcessingLatency(30)
				RecordWorkerError()
				RecordWorkerSkipped()
				RecordHTTPRequest("classify", "POST", "200")
				RecordHTTPRequestDuration("classify", "POST", "200", 30)
				RecordErrorByComponent("pipeline", "decode_error")
				RecordErrorByType("decode_error", "medium")
				RecordErrorByEndpoint("classify", "POST", "client_error")
				RecordErrorLatency("http", "client_error", 2)
				RecordWeatherLookup("cache")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})

		Convey("When the registry is gathered", func() {
			families, err := GetRegistry().Gather()

			Convey("Then it should expose skincheck metrics", func() {
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "skincheck_classifier_model_status" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}
