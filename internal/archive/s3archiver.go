// Package archive implements optional import/export of a preset.Document
// to an S3-compatible bucket (SPEC_FULL.md §B, §C supplement 2), grounded
// on the teacher's recording upload path
// (internal/recording/upload.go's createS3Client/TestS3Connection). This
// sits outside internal/engine: PresetDocument is owned by whoever
// presents it to the engine's from_state, and archiving is a pure
// import/export adapter a host may wire in.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sound2osc/engine/internal/preset"
)

// connectTimeout bounds a single S3 operation, matching TestS3Connection's
// 30 s ctx timeout.
const connectTimeout = 30 * time.Second

// Config holds the S3-compatible bucket connection parameters.
type Config struct {
	Endpoint        string // empty for AWS S3 itself; set for S3-compatible storage
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// IsConfigured reports whether enough fields are set to attempt a
// connection.
func (c Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// S3Archiver stores and retrieves preset.Document snapshots as JSON
// objects in an S3-compatible bucket.
type S3Archiver struct {
	bucket string
	client *s3.Client
}

// NewS3Archiver validates cfg and builds the underlying S3 client.
func NewS3Archiver(cfg Config) (*S3Archiver, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("archive: S3 is not configured")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Archiver{
		bucket: cfg.Bucket,
		client: s3.New(s3.Options{}, options...),
	}, nil
}

// Store uploads doc to the bucket under key.
func (a *S3Archiver) Store(ctx context.Context, key string, doc preset.Document) error {
	data, err := preset.Encode(doc)
	if err != nil {
		return fmt.Errorf("archive: encode preset document: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("archive: upload preset document: %w", err)
	}
	return nil
}

// Load downloads and validates the preset.Document stored under key.
func (a *S3Archiver) Load(ctx context.Context, key string) (preset.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return preset.Document{}, fmt.Errorf("archive: download preset document: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return preset.Document{}, fmt.Errorf("archive: read preset document: %w", err)
	}

	doc, err := preset.Decode(data)
	if err != nil {
		return preset.Document{}, fmt.Errorf("archive: %w", err)
	}
	return doc, nil
}

// TestConnection uploads and deletes a small marker object, verifying
// bucket connectivity and credentials (grounded on
// recording/upload.go's TestS3Connection).
func (a *S3Archiver) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	testKey := fmt.Sprintf("sound2osc-connection-test-%d.txt", time.Now().UnixNano())
	testContent := []byte("sound2osc archive connection test")

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(testKey),
		Body:          bytes.NewReader(testContent),
		ContentLength: aws.Int64(int64(len(testContent))),
	})
	if err != nil {
		return fmt.Errorf("archive: upload test object: %w", err)
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(testKey),
	})
	return err
}
