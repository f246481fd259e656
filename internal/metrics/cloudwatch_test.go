package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"mboflow/logger"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// capturePublishes installs a client stub, a fixed clock and a recording
// sender. It restores everything on cleanup.
func capturePublishes(t *testing.T, interval time.Duration) (*fakeClock, *[][]cwtypes.MetricDatum) {
	t.Helper()
	prev := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}, namespace: "Test"})

	prevInterval := throttle.interval
	throttle.reset(interval)

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	timeNow = func() time.Time { return clock.now }

	var batches [][]cwtypes.MetricDatum
	sendMetricData = func(_ context.Context, _ *cloudWatchState, data []cwtypes.MetricDatum) {
		batches = append(batches, append([]cwtypes.MetricDatum(nil), data...))
	}

	t.Cleanup(func() {
		cwState.Store(prev)
		throttle.reset(prevInterval)
		timeNow = time.Now
		sendMetricData = putMetricData
	})
	return clock, &batches
}

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	clock, batches := capturePublishes(t, 50*time.Millisecond)
	m := Metric{Component: "replay", Name: "messages_replayed", Fields: logger.Fields{"unit": "count"}}

	publishMetricDatum(m, 1)
	clock.advance(25 * time.Millisecond)
	publishMetricDatum(m, 2)

	if len(*batches) != 1 || len((*batches)[0]) != 1 {
		t.Fatalf("expected a single datum, got %v", *batches)
	}
	d := (*batches)[0][0]
	if aws.ToString(d.MetricName) != "messages_replayed" || aws.ToFloat64(d.Value) != 1 {
		t.Fatalf("unexpected datum: %+v", d)
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	clock, batches := capturePublishes(t, 50*time.Millisecond)
	m := Metric{Component: "replay", Name: "messages_replayed"}

	publishMetricDatum(m, 1)
	clock.advance(75 * time.Millisecond)
	publishMetricDatum(m, 2)

	if len(*batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*batches))
	}
	if v := aws.ToFloat64((*batches)[1][0].Value); v != 2 {
		t.Fatalf("unexpected second value: %v", v)
	}
}

func TestPublishMetricDatumSeparatesSeries(t *testing.T) {
	_, batches := capturePublishes(t, time.Minute)

	for _, impl := range []string{"OrderBook", "FlatOrderBook"} {
		publishMetricDatum(Metric{Component: "benchmark", Name: "latency_p99_ns", Fields: logger.Fields{"implementation": impl}}, 1)
	}
	if len(*batches) != 2 {
		t.Fatalf("expected one publish per series, got %d", len(*batches))
	}
}

func TestPublishMetricDatumWithoutClient(t *testing.T) {
	_, batches := capturePublishes(t, time.Minute)
	cwState.Store(&cloudWatchState{})

	publishMetricDatum(Metric{Component: "replay", Name: "messages_replayed"}, 1)
	if len(*batches) != 0 {
		t.Fatal("publish should be skipped without a client")
	}
}

func TestBuildDatum(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d := buildDatum(Metric{
		Timestamp: ts,
		Component: "s3_uploader",
		Name:      "bytes_written",
		Fields:    logger.Fields{"unit": "Bytes", "bucket": "b", "empty": "", "files": 3},
	}, 512)

	if d.Unit != cwtypes.StandardUnitBytes {
		t.Fatalf("unexpected unit: %s", d.Unit)
	}
	if !aws.ToTime(d.Timestamp).Equal(ts) {
		t.Fatalf("unexpected timestamp: %v", d.Timestamp)
	}
	// component and bucket only
	if len(d.Dimensions) != 2 || aws.ToString(d.Dimensions[1].Name) != "bucket" {
		t.Fatalf("unexpected dimensions: %+v", d.Dimensions)
	}

	if u := unitOf(Metric{Fields: logger.Fields{"unit": "furlongs"}}); u != cwtypes.StandardUnitCount {
		t.Fatalf("unknown unit should default to Count, got %s", u)
	}
}

func TestSeriesKeyIgnoresNumericFields(t *testing.T) {
	a := seriesKey(Metric{Component: "c", Name: "n", Fields: logger.Fields{"impl": "x", "count": 1}})
	b := seriesKey(Metric{Component: "c", Name: "n", Fields: logger.Fields{"impl": "x", "count": 2}})
	if a != b || a != "c|n|impl=x" {
		t.Fatalf("unexpected keys %q %q", a, b)
	}
}

func TestRenderDashboard(t *testing.T) {
	body, err := renderDashboard("MboflowProd", "eu-west-1")
	if err != nil {
		t.Fatalf("renderDashboard: %v", err)
	}
	if !strings.Contains(body, `"MboflowProd"`) || strings.Contains(body, `"Mboflow"`) {
		t.Fatalf("namespace not substituted")
	}
	if !strings.Contains(body, `"eu-west-1"`) || strings.Contains(body, `"us-east-1"`) {
		t.Fatalf("region not substituted")
	}
}
