package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Exporter streams the submission history to one object per export.
type S3Exporter struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
	now      func() time.Time
	logger   *slog.Logger
}

// NewS3Exporter builds an exporter using the default AWS credential chain.
func NewS3Exporter(region, bucket, prefix string) (*S3Exporter, error) {
	if bucket == "" {
		return nil, fmt.Errorf("no S3 bucket configured (export.s3_bucket)")
	}
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return NewS3ExporterWithUploader(s3manager.NewUploader(sess), bucket, prefix), nil
}

// NewS3ExporterWithUploader creates an exporter with a custom uploader (for testing).
func NewS3ExporterWithUploader(uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3Exporter {
	return &S3Exporter{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// Key returns the object key an export started at t is written to.
func (e *S3Exporter) Key(t time.Time) string {
	prefix := e.prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + "submissions-" + t.UTC().Format("20060102T150405Z") + ".jsonl"
}

// Export uploads the whole history and returns the object location and the
// number of records written.
func (e *S3Exporter) Export(ctx context.Context, src Source) (string, int, error) {
	key := e.Key(e.now())

	pr, pw := io.Pipe()
	count := make(chan int, 1)
	go func() {
		n, err := WriteJSONL(ctx, src, pw)
		count <- n
		pw.CloseWithError(err)
	}()

	out, err := e.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        pr,
		ContentType: aws.String("application/x-ndjson"),
	})
	pr.CloseWithError(err)
	n := <-count
	if err != nil {
		return "", n, fmt.Errorf("uploading s3://%s/%s: %w", e.bucket, key, err)
	}

	e.logger.Info("exported submissions", "location", out.Location, "records", n)
	return out.Location, n, nil
}
