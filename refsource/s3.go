package refsource

import (
	"bytes"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
)

// S3 downloads an object at s3://bucket/key into memory and returns it as a
// Source, using s3manager's concurrent range-fetch Downloader the way
// encoding/bamprovider/provider_test.go wires up an s3-backed file
// implementation from a plain aws/session.Options{}.
//
// Reference corpora fetched this way are expected to fit comfortably in
// memory; a corpus too large for that should be staged locally first and
// opened with Local instead.
func S3(bucket, key string) (Source, error) {
	sess, err := session.NewSession(&aws.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "refsource: create AWS session")
	}
	downloader := s3manager.NewDownloader(sess)
	buf := aws.NewWriteAtBuffer(nil)
	if _, err := downloader.Download(buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, errors.Wrapf(err, "refsource: download s3://%s/%s", bucket, key)
	}
	return newFastaScanner(ioutil.NopCloser(bytes.NewReader(buf.Bytes()))), nil
}
