package metrics

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"mboflow/logger"
)

//go:embed CWdash.json
var dashboardTemplate string

const (
	templateNamespace = "Mboflow"
	templateRegion    = "us-east-1"
)

type cloudWatchState struct {
	client        *cloudwatch.Client
	namespace     string
	dashboardName string
	region        string
}

func defaultState() *cloudWatchState {
	return &cloudWatchState{namespace: templateNamespace, dashboardName: templateNamespace}
}

var cwState atomic.Pointer[cloudWatchState]

func init() { cwState.Store(defaultState()) }

// seriesThrottle limits each metric series to one datum per interval.
type seriesThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func (t *seriesThrottle) allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.last[key]; ok && now.Sub(prev) < t.interval {
		return false
	}
	t.last[key] = now
	return true
}

func (t *seriesThrottle) reset(interval time.Duration) {
	t.mu.Lock()
	t.last = map[string]time.Time{}
	if interval > 0 {
		t.interval = interval
	}
	t.mu.Unlock()
}

var (
	throttle       = &seriesThrottle{interval: time.Minute, last: map[string]time.Time{}}
	timeNow        = time.Now
	sendMetricData = putMetricData
)

// SetPublishInterval changes the per series throttle. Non positive values
// are ignored.
func SetPublishInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	throttle.mu.Lock()
	throttle.interval = d
	throttle.mu.Unlock()
}

// InitCloudWatch creates the metrics client and installs the dashboard
// from CWdash.json. region falls back to AWS_REGION. On failure metrics
// stay local.
func InitCloudWatch(ctx context.Context, region, namespace, dashboard string) {
	log := logger.GetLogger().WithComponent("cloudwatch")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	state := *cwState.Load()
	state.client = cloudwatch.NewFromConfig(cfg)
	state.region = region
	if cfg.Region != "" {
		state.region = cfg.Region
	}
	if namespace != "" {
		state.namespace = namespace
	}
	if dashboard != "" {
		state.dashboardName = dashboard
	}
	cwState.Store(&state)

	log.WithFields(logger.Fields{
		"region":    state.region,
		"namespace": state.namespace,
	}).Info("initialized CloudWatch client")

	if err := CreateDashboardFromTemplate(ctx); err != nil {
		log.WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}

// EmitMetric logs the metric, notifies handlers and, when a client is
// configured, publishes numeric values.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	m, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}
	v, ok := toFloat64(m.Value)
	if !ok {
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": m.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}
	publishMetricDatum(m, v)
}

// renderDashboard rewrites the template's namespace and region.
func renderDashboard(namespace, region string) (string, error) {
	quote := strconv.Quote
	body := dashboardTemplate
	if namespace != "" {
		body = strings.ReplaceAll(body, quote(templateNamespace), quote(namespace))
	}
	if region != "" {
		body = strings.ReplaceAll(body, quote(templateRegion), quote(region))
	}
	if !json.Valid([]byte(body)) {
		return "", errors.New("dashboard template is not valid JSON after substitution")
	}
	return body, nil
}

// CreateDashboardFromTemplate puts the rendered dashboard. It is a no-op
// without a client.
func CreateDashboardFromTemplate(ctx context.Context) error {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return nil
	}
	body, err := renderDashboard(state.namespace, state.region)
	if err != nil {
		return err
	}
	if _, err := state.client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(state.dashboardName),
		DashboardBody: aws.String(body),
	}); err != nil {
		return err
	}
	logger.GetLogger().WithComponent("cloudwatch").Debug("updated CloudWatch dashboard from template")
	return nil
}

// reservedFields never become dimensions.
var reservedFields = map[string]bool{"metric": true, "metric_type": true, "value": true, "unit": true}

// dimensions are the component plus every non empty string field, sorted
// by key.
func dimensions(m Metric) []cwtypes.Dimension {
	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(m.Component)}}
	for _, k := range sortedKeys(m.Fields) {
		if reservedFields[k] {
			continue
		}
		if s, ok := m.Fields[k].(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}
	return dims
}

func seriesKey(m Metric) string {
	parts := []string{m.Component, m.Name}
	for _, d := range dimensions(m)[1:] {
		parts = append(parts, aws.ToString(d.Name)+"="+aws.ToString(d.Value))
	}
	return strings.Join(parts, "|")
}

var metricUnits = map[string]cwtypes.StandardUnit{
	"count":        cwtypes.StandardUnitCount,
	"percent":      cwtypes.StandardUnitPercent,
	"bytes":        cwtypes.StandardUnitBytes,
	"ms":           cwtypes.StandardUnitMilliseconds,
	"milliseconds": cwtypes.StandardUnitMilliseconds,
	"us":           cwtypes.StandardUnitMicroseconds,
	"microseconds": cwtypes.StandardUnitMicroseconds,
	"ns":           cwtypes.StandardUnitNone,
	"none":         cwtypes.StandardUnitNone,
}

// unitOf reads the "unit" field, defaulting to Count.
func unitOf(m Metric) cwtypes.StandardUnit {
	raw, ok := m.Fields["unit"].(string)
	if !ok {
		return cwtypes.StandardUnitCount
	}
	if u, found := metricUnits[strings.ToLower(raw)]; found {
		return u
	}
	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": m.Name, "unit": raw}).Debug("unsupported metric unit; defaulting to Count")
	return cwtypes.StandardUnitCount
}

func buildDatum(m Metric, value float64) cwtypes.MetricDatum {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = timeNow()
	}
	return cwtypes.MetricDatum{
		MetricName: aws.String(m.Name),
		Dimensions: dimensions(m),
		Timestamp:  aws.Time(ts),
		Unit:       unitOf(m),
		Value:      aws.Float64(value),
	}
}

func publishMetricDatum(m Metric, value float64) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}
	if !throttle.allow(seriesKey(m), timeNow()) {
		return
	}
	sendMetricData(context.Background(), state, []cwtypes.MetricDatum{buildDatum(m, value)})
}

func putMetricData(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
	if state == nil || state.client == nil || len(data) == 0 {
		return
	}
	log := logger.GetLogger().WithComponent("cloudwatch")
	if _, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(state.namespace),
		MetricData: data,
	}); err != nil {
		log.WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}
	names := make([]string, len(data))
	for i, d := range data {
		names[i] = aws.ToString(d.MetricName)
	}
	log.WithField("metrics", strings.Join(names, ",")).Debug("published metrics to CloudWatch")
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
