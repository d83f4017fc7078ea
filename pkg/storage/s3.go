package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/gherkinreport/pkg/config"
	"github.com/ethpandaops/gherkinreport/pkg/report"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Store = (*s3Store)(nil)

type s3Store struct {
	log    logrus.FieldLogger
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates a Store backed by S3-compatible storage. Trees are
// written to {prefix}/runs/{runID}/gherkin-result.json.
func NewS3Store(log logrus.FieldLogger, cfg *config.S3Config) Store {
	return &s3Store{
		log:    log.WithField("component", "s3-store"),
		client: NewS3Client(cfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}
}

func (s *s3Store) runsPrefix() string {
	if s.prefix == "" {
		return RunsDir + "/"
	}

	return s.prefix + "/" + RunsDir + "/"
}

func (s *s3Store) resultKey(runID string) string {
	return s.runsPrefix() + runID + "/" + ResultFile
}

// Save uploads the encoded tree in a single PutObject.
func (s *s3Store) Save(
	ctx context.Context, runID string, suite *report.Suite,
) error {
	if err := ValidateRunID(runID); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := report.Encode(&buf, suite); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	key := s.resultKey(runID)

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("putting object %q: %w", key, err)
	}

	s.log.WithFields(logrus.Fields{
		"run_id": runID,
		"key":    key,
	}).Debug("Saved result")

	return nil
}

// Load reads {prefix}/runs/{runID}/gherkin-result.json.
func (s *s3Store) Load(
	ctx context.Context, runID string,
) (*report.Suite, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, err
	}

	key := s.resultKey(runID)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	defer func() { _ = out.Body.Close() }()

	suite, err := report.Decode(out.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding object %q: %w", key, err)
	}

	return suite, nil
}

// ListRunIDs lists run IDs (common prefixes) under {prefix}/runs/.
func (s *s3Store) ListRunIDs(ctx context.Context) ([]string, error) {
	prefix := s.runsPrefix()

	paginator := s3.NewListObjectsV2Paginator(
		s.client, &s3.ListObjectsV2Input{
			Bucket:    aws.String(s.bucket),
			Prefix:    aws.String(prefix),
			Delimiter: aws.String("/"),
		},
	)

	var ids []string

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf(
				"listing run prefixes under %q: %w", prefix, err,
			)
		}

		for _, cp := range page.CommonPrefixes {
			if cp.Prefix != nil {
				ids = append(ids, path.Base(strings.TrimRight(*cp.Prefix, "/")))
			}
		}
	}

	sort.Strings(ids)

	return ids, nil
}

func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	return strings.Contains(err.Error(), "NoSuchKey")
}

// NewS3Client builds an S3 client from connection settings. An empty
// region falls back to us-east-1.
func NewS3Client(cfg *config.S3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
