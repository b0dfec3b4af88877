package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// dateToken in an S3 key is replaced with the export's UTC date, giving one
// archive object per day instead of a single overwritten file.
const dateToken = "{date}"

// S3Config locates the session archive.
type S3Config struct {
	Bucket string
	// Key may contain {date}.
	Key      string
	Region   string
	Endpoint string // non-empty for MinIO and similar; enables path-style addressing
}

// S3Destination uploads session exports to an S3-compatible bucket. Each
// object carries the export header's counts as user metadata so archives can
// be inventoried without downloading them.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
	now    func() time.Time
}

func NewS3Destination(ctx context.Context, cfg S3Config) (*S3Destination, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 destination: bucket is required")
	}
	key := strings.TrimPrefix(cfg.Key, "/")
	if key == "" {
		key = "baywatch/sessions.jsonl"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Destination{
		client: s3.NewFromConfig(awsCfg, s3opts...),
		bucket: cfg.Bucket,
		key:    key,
		now:    time.Now,
	}, nil
}

func (d *S3Destination) Name() string { return "s3://" + d.bucket + "/" + d.key }

// Write uploads one export. The object key is resolved from the export
// header's timestamp, falling back to the current time.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	h, ok := exportHeader(data)
	ts := h.Timestamp
	if ts.IsZero() {
		ts = d.now()
	}
	key := strings.ReplaceAll(d.key, dateToken, ts.UTC().Format(time.DateOnly))

	input := &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	}
	if ok {
		input.Metadata = map[string]string{
			"export-version": h.Version,
			"session-count":  strconv.Itoa(h.SessionCount),
			"tag-count":      strconv.Itoa(h.TagCount),
		}
	}

	if _, err := d.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return nil
}

// exportHeader decodes the first JSONL line of an export.
func exportHeader(data []byte) (header, bool) {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	var h header
	if err := json.Unmarshal(line, &h); err != nil || h.Type != "header" {
		return header{}, false
	}
	return h, true
}
