package logger

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	defaultHostNamespace = "Mboflow"
	defaultHostDashboard = "Mboflow"
)

// hostSink publishes resource usage and pipeline counters.
type hostSink struct {
	client    *cloudwatch.Client
	namespace string
	dashboard string
}

var sink atomic.Pointer[hostSink]

// InitCloudWatch creates the client used for host and pipeline counters.
// region falls back to AWS_REGION. Failures leave publishing disabled.
func InitCloudWatch(region, namespace, dashboard string) {
	log := GetLogger().WithComponent("cloudwatch")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; CloudWatch metrics disabled")
		return
	}

	s := &hostSink{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: firstNonEmpty(namespace, defaultHostNamespace),
		dashboard: firstNonEmpty(dashboard, defaultHostDashboard),
	}
	sink.Store(s)
	log.WithFields(Fields{"region": region, "namespace": s.namespace}).Info("initialized CloudWatch client")

	if err := s.putDashboard(ctx); err != nil {
		log.WithError(err).Warn("failed to create CloudWatch dashboard")
	}
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func publishMetrics(ctx context.Context, data []cwtypes.MetricDatum) {
	s := sink.Load()
	if s == nil || len(data) == 0 {
		return
	}
	log := GetLogger().WithComponent("cloudwatch")
	if _, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: data,
	}); err != nil {
		log.WithError(err).Warn("failed to publish CloudWatch metrics")
		return
	}

	names := make([]string, 0, len(data))
	for _, d := range data {
		names = append(names, aws.ToString(d.MetricName))
	}
	log.WithField("metrics", strings.Join(names, ",")).Debug("published metrics to CloudWatch")
}

type dashboardWidget struct {
	Type       string           `json:"type"`
	Width      int              `json:"width"`
	Height     int              `json:"height"`
	Properties widgetProperties `json:"properties"`
}

type widgetProperties struct {
	Metrics [][]string `json:"metrics"`
	Period  int        `json:"period"`
	Stat    string     `json:"stat"`
	Title   string     `json:"title"`
}

var (
	hostMetricNames     = []string{"CPUPercent", "MemoryMB", "DiskMB"}
	pipelineMetricNames = []string{"RecordsDecoded", "MessagesReplayed", "ArtifactsWritten", "Uploads", "KafkaPublished"}
)

func metricWidget(namespace, title, stat string, names []string) dashboardWidget {
	rows := make([][]string, len(names))
	for i, n := range names {
		rows[i] = []string{namespace, n}
	}
	return dashboardWidget{
		Type:   "metric",
		Width:  12,
		Height: 6,
		Properties: widgetProperties{
			Metrics: rows,
			Period:  60,
			Stat:    stat,
			Title:   title,
		},
	}
}

// dashboardBody lays out one widget for host usage and one for the
// pipeline counters.
func dashboardBody(namespace string) (string, error) {
	body, err := json.Marshal(map[string][]dashboardWidget{
		"widgets": {
			metricWidget(namespace, "Mboflow Host", "Average", hostMetricNames),
			metricWidget(namespace, "Mboflow Pipeline", "Maximum", pipelineMetricNames),
		},
	})
	return string(body), err
}

func (s *hostSink) putDashboard(ctx context.Context) error {
	body, err := dashboardBody(s.namespace)
	if err != nil {
		return err
	}
	_, err = s.client.PutDashboard(ctx, &cloudwatch.PutDashboardInput{
		DashboardName: aws.String(s.dashboard),
		DashboardBody: aws.String(body),
	})
	return err
}
