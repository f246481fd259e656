package writer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/time/rate"

	appconfig "mboflow/config"
	"mboflow/internal/metrics"
	"mboflow/logger"
)

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UploadedObject describes one artifact stored in S3.
type UploadedObject struct {
	LocalPath string
	Key       string
	Size      int64
}

// S3Uploader copies an artifacts tree to
// s3://bucket/<prefix>/run=<run id>/<relative path>.
type S3Uploader struct {
	client      putObjectAPI
	bucket      string
	prefix      string
	version     string
	concurrency int
	timeout     time.Duration
	limiter     *rate.Limiter
	log         *logger.Log

	// Metrics
	filesWritten int64
	bytesWritten int64
	errorsCount  int64
}

// NewS3Uploader loads AWS configuration and builds the S3 client.
func NewS3Uploader(ctx context.Context, cfg *appconfig.Config) (*S3Uploader, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_uploader").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	u := newS3Uploader(client, cfg)
	log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("s3 uploader initialized")
	return u, nil
}

func newS3Uploader(client putObjectAPI, cfg *appconfig.Config) *S3Uploader {
	s3cfg := cfg.Storage.S3
	limit := rate.Inf
	if s3cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(s3cfg.RequestsPerSecond)
	}
	concurrency := s3cfg.UploadConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &S3Uploader{
		client:      client,
		bucket:      s3cfg.Bucket,
		prefix:      strings.Trim(s3cfg.Prefix, "/"),
		version:     cfg.Mboflow.Version,
		concurrency: concurrency,
		timeout:     s3cfg.Timeout,
		limiter:     rate.NewLimiter(limit, 1),
		log:         logger.GetLogger(),
	}
}

// Key is the object key of a file at rel inside the artifacts tree.
func (u *S3Uploader) Key(runID, rel string) string {
	parts := []string{}
	if u.prefix != "" {
		parts = append(parts, u.prefix)
	}
	parts = append(parts, "run="+runID, filepath.ToSlash(rel))
	return path.Join(parts...)
}

// Location is the s3 URL every object of the run is stored under.
func (u *S3Uploader) Location(runID string) string {
	return "s3://" + u.bucket + "/" + u.Key(runID, "")
}

var contentTypes = map[string]string{
	".png":     "image/png",
	".svg":     "image/svg+xml",
	".json":    "application/json",
	".csv":     "text/csv",
	".parquet": "application/octet-stream",
	".dbn":     "application/octet-stream",
}

func contentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// UploadDir uploads every regular file under root.
func (u *S3Uploader) UploadDir(ctx context.Context, root, runID string) ([]UploadedObject, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk artifacts directory: %w", err)
	}
	sort.Strings(files)

	log := u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"root":   root,
		"run_id": runID,
		"files":  len(files),
	})
	log.Info("uploading artifacts")
	start := time.Now()

	jobs := make(chan string)
	results := make([]UploadedObject, 0, len(files))
	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	for i := 0; i < u.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				obj, err := u.uploadFile(ctx, root, p, runID)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					results = append(results, obj)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, p := range files {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- p:
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr == nil {
		firstErr = ctx.Err()
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })

	metrics.ReportWriter(u.log, "s3_uploader", metrics.WriterStats{
		RecordsWritten: int64(len(results)),
		FilesWritten:   atomic.LoadInt64(&u.filesWritten),
		BytesWritten:   atomic.LoadInt64(&u.bytesWritten),
		ErrorsCount:    atomic.LoadInt64(&u.errorsCount),
	})
	logger.LogPerformanceEntry(log, "s3_uploader", "upload_dir", time.Since(start), logger.Fields{
		"uploaded": len(results),
	})
	return results, firstErr
}

func (u *S3Uploader) uploadFile(ctx context.Context, root, p, runID string) (UploadedObject, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return UploadedObject{}, err
	}
	key := u.Key(runID, rel)
	log := u.log.WithComponent("s3_uploader").WithFields(logger.Fields{
		"operation": "upload_to_s3",
		"s3_key":    key,
	})

	if err := u.limiter.Wait(ctx); err != nil {
		return UploadedObject{}, err
	}

	f, err := os.Open(p)
	if err != nil {
		atomic.AddInt64(&u.errorsCount, 1)
		return UploadedObject{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		atomic.AddInt64(&u.errorsCount, 1)
		return UploadedObject{}, fmt.Errorf("failed to stat artifact: %w", err)
	}

	reqCtx := ctx
	if u.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(p)),
		Metadata: map[string]string{
			"run-id":          runID,
			"mboflow-version": u.version,
		},
	}
	if _, err := u.client.PutObject(reqCtx, input); err != nil {
		atomic.AddInt64(&u.errorsCount, 1)
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": u.bucket}).
			Error("failed to upload to S3")
		return UploadedObject{}, fmt.Errorf("failed to upload to S3 bucket %s: %w", u.bucket, err)
	}

	atomic.AddInt64(&u.filesWritten, 1)
	atomic.AddInt64(&u.bytesWritten, info.Size())
	logger.IncrementUpload(info.Size())
	log.WithFields(logger.Fields{"size": info.Size()}).Debug("successfully uploaded to S3")

	return UploadedObject{LocalPath: p, Key: key, Size: info.Size()}, nil
}
