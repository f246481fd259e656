package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type stageStat struct {
	records int64
	bytes   int64
}

var (
	recordsDecoded   int64
	messagesReplayed int64
	artifactsWritten int64
	artifactBytes    int64
	uploads          int64
	uploadBytes      int64
	published        int64
	warns            sync.Map // map[string]*int64
	errs             sync.Map // map[string]*int64
	stages           sync.Map // map[string]*stageStat
)

func bump(m *sync.Map, component string) {
	v, _ := m.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordWarn(component string) {
	bump(&warns, component)
}

func recordError(component string) {
	bump(&errs, component)
}

// IncrementDecoded counts MBO records read from input files.
func IncrementDecoded(n int) {
	atomic.AddInt64(&recordsDecoded, int64(n))
	recordStage("decode", n, int64(n)*56)
}

// IncrementReplayed counts messages applied to an order book.
func IncrementReplayed(n int) {
	atomic.AddInt64(&messagesReplayed, int64(n))
	recordStage("replay", n, 0)
}

// IncrementArtifact counts a finished output file.
func IncrementArtifact(size int64) {
	atomic.AddInt64(&artifactsWritten, 1)
	atomic.AddInt64(&artifactBytes, size)
	recordStage("artifact", 1, size)
}

// IncrementUpload counts an object stored in S3.
func IncrementUpload(size int64) {
	atomic.AddInt64(&uploads, 1)
	atomic.AddInt64(&uploadBytes, size)
	recordStage("s3_upload", 1, size)
}

// IncrementPublished counts records sent to Kafka.
func IncrementPublished(n int, size int) {
	atomic.AddInt64(&published, int64(n))
	recordStage("kafka_publish", n, int64(size))
}

func recordStage(name string, records int, size int64) {
	v, _ := stages.LoadOrStore(name, &stageStat{})
	st := v.(*stageStat)
	atomic.AddInt64(&st.records, int64(records))
	atomic.AddInt64(&st.bytes, size)
}

// Counters is a point in time copy of the pipeline counters.
type Counters struct {
	RecordsDecoded   int64
	MessagesReplayed int64
	ArtifactsWritten int64
	ArtifactBytes    int64
	Uploads          int64
	UploadBytes      int64
	Published        int64
	Warns            map[string]int64
	Errors           map[string]int64
}

func loadCounts(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

// Snapshot returns the current pipeline counters.
func Snapshot() Counters {
	return Counters{
		RecordsDecoded:   atomic.LoadInt64(&recordsDecoded),
		MessagesReplayed: atomic.LoadInt64(&messagesReplayed),
		ArtifactsWritten: atomic.LoadInt64(&artifactsWritten),
		ArtifactBytes:    atomic.LoadInt64(&artifactBytes),
		Uploads:          atomic.LoadInt64(&uploads),
		UploadBytes:      atomic.LoadInt64(&uploadBytes),
		Published:        atomic.LoadInt64(&published),
		Warns:            loadCounts(&warns),
		Errors:           loadCounts(&errs),
	}
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of host and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

// LogReport emits a single report immediately.
func LogReport(ctx context.Context, log *Log) {
	logReport(ctx, log)
}

func sum(m map[string]int64) int64 {
	var total int64
	for _, v := range m {
		total += v
	}
	return total
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")

	stageData := map[string]map[string]int64{}
	var stageNames []string
	stages.Range(func(k, v any) bool {
		name := k.(string)
		st := v.(*stageStat)
		stageData[name] = map[string]int64{
			"records": atomic.LoadInt64(&st.records),
			"bytes":   atomic.LoadInt64(&st.bytes),
		}
		stageNames = append(stageNames, name)
		return true
	})
	sort.Strings(stageNames)

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	var memMB, diskMB float64
	if memStats != nil {
		memMB = float64(memStats.Used) / 1024 / 1024
	}
	if diskStats != nil {
		diskMB = float64(diskStats.Used) / 1024 / 1024
	}

	c := Snapshot()
	fields := Fields{
		"errors":            c.Errors,
		"warns":             c.Warns,
		"records_decoded":   c.RecordsDecoded,
		"messages_replayed": c.MessagesReplayed,
		"artifacts_written": c.ArtifactsWritten,
		"artifact_bytes":    c.ArtifactBytes,
		"uploads":           c.Uploads,
		"kafka_published":   c.Published,
		"goroutines":        runtime.NumGoroutine(),
		"cpu_percent":       cpuPct,
		"memory_mb":         int64(memMB),
		"disk_mb":           int64(diskMB),
		"stages":            stageData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	count := func(name string, v int64) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{MetricName: aws.String(name), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(v))}
	}
	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memMB)},
		{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(diskMB)},
		count("Errors", sum(c.Errors)),
		count("Warns", sum(c.Warns)),
		count("RecordsDecoded", c.RecordsDecoded),
		count("MessagesReplayed", c.MessagesReplayed),
		count("ArtifactsWritten", c.ArtifactsWritten),
		count("Uploads", c.Uploads),
		count("KafkaPublished", c.Published),
	}

	for _, name := range stageNames {
		stats := stageData[name]
		dims := []cwtypes.Dimension{{Name: aws.String("Stage"), Value: aws.String(name)}}
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("StageRecords"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
				Value:      aws.Float64(float64(stats["records"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("StageBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: dims,
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
