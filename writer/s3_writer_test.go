package writer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "mboflow/config"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	meta    map[string]map[string]string
	fail    string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	if f.fail != "" && filepath.Base(key) == f.fail {
		return nil, errors.New("access denied")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
		f.types = map[string]string{}
		f.meta = map[string]map[string]string{}
	}
	f.objects[key] = body
	f.types[key] = aws.ToString(in.ContentType)
	f.meta[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func uploaderConfig() *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Mboflow.Version = "1.2.3"
	cfg.Storage.S3.Bucket = "mboflow-artifacts"
	cfg.Storage.S3.Prefix = "/reports/"
	cfg.Storage.S3.UploadConcurrency = 3
	cfg.Storage.S3.RequestsPerSecond = 0
	return &cfg
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestS3UploaderKey(t *testing.T) {
	u := newS3Uploader(&fakeS3{}, uploaderConfig())
	if got := u.Key("abc", filepath.Join("vis", "latency", "x.png")); got != "reports/run=abc/vis/latency/x.png" {
		t.Fatalf("unexpected key %s", got)
	}
	cfg := uploaderConfig()
	cfg.Storage.S3.Prefix = ""
	if got := newS3Uploader(&fakeS3{}, cfg).Key("abc", "a.csv"); got != "run=abc/a.csv" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := u.Location("abc"); got != "s3://mboflow-artifacts/reports/run=abc" {
		t.Fatalf("unexpected location %s", got)
	}
}

func TestS3UploaderUploadDir(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"benchmark_results.csv":                  "a,1,2,2\n",
		"mbp/map_a.dbn.json":                     "[]",
		"vis/latency/OrderBook_distribution.png": "png",
		"vis/latency/OrderBook_distribution.svg": "<svg/>",
	})

	fs3 := &fakeS3{}
	u := newS3Uploader(fs3, uploaderConfig())
	objs, err := u.UploadDir(context.Background(), root, "run-1")
	if err != nil {
		t.Fatalf("UploadDir: %v", err)
	}
	if len(objs) != 4 || len(fs3.objects) != 4 {
		t.Fatalf("expected 4 uploads, got %d/%d", len(objs), len(fs3.objects))
	}
	if objs[0].Key != "reports/run=run-1/benchmark_results.csv" {
		t.Fatalf("results not sorted by key: %+v", objs)
	}

	key := "reports/run=run-1/vis/latency/OrderBook_distribution.svg"
	if string(fs3.objects[key]) != "<svg/>" || fs3.types[key] != "image/svg+xml" {
		t.Fatalf("unexpected object %q (%s)", fs3.objects[key], fs3.types[key])
	}
	if fs3.types["reports/run=run-1/benchmark_results.csv"] != "text/csv" {
		t.Fatal("csv content type not set")
	}
	if fs3.meta[key]["run-id"] != "run-1" || fs3.meta[key]["mboflow-version"] != "1.2.3" {
		t.Fatalf("unexpected metadata %+v", fs3.meta[key])
	}
}

func TestS3UploaderError(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.json": "{}", "b.png": "png"})

	u := newS3Uploader(&fakeS3{fail: "b.png"}, uploaderConfig())
	objs, err := u.UploadDir(context.Background(), root, "r")
	if err == nil {
		t.Fatal("expected upload error")
	}
	if len(objs) != 1 || u.errorsCount != 1 {
		t.Fatalf("expected one success and one error, got %d/%d", len(objs), u.errorsCount)
	}
}

func TestS3UploaderMissingRoot(t *testing.T) {
	u := newS3Uploader(&fakeS3{}, uploaderConfig())
	if _, err := u.UploadDir(context.Background(), filepath.Join(t.TempDir(), "missing"), "r"); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestContentType(t *testing.T) {
	if contentType("x.PNG") != "image/png" || contentType("x.bin") != "application/octet-stream" {
		t.Fatal("unexpected content type mapping")
	}
}
