// Package s3 archives canonical CAP documents of accepted alerts.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// uploader is the subset of s3manager.Uploader used by Archive.
type uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// Archive writes CAP documents to an S3 bucket. It implements ingest.Archiver.
type Archive struct {
	bucket   string
	uploader uploader
}

// New returns an Archive for bucket in region.
func New(bucket, region string) (*Archive, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &Archive{bucket: bucket, uploader: s3manager.NewUploader(sess)}, nil
}

// Key returns the object key of an alert document.
func Key(sourceID, alertID string) string {
	return "alerts/" + url.PathEscape(sourceID) + "/" + url.PathEscape(alertID) + ".xml"
}

// Archive uploads doc and returns its object key.
func (a *Archive) Archive(ctx context.Context, sourceID, alertID string, doc []byte) (string, error) {
	key := Key(sourceID, alertID)
	_, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/xml"),
		Body:        bytes.NewReader(doc),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}
