// Package s3 fetches catalog sources from S3 so that any file grammar
// can consume them: a RawSource lists the objects under a bucket/prefix
// and hands out named readers usable as grammar source tokens.
package s3

import (
	"io"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	cdk "github.com/heliodc/cdk"
)

// RawSource is a cdk.RawSource over the objects below an S3 prefix.
type RawSource struct {
	bucket string
	prefix string
	region string

	s3      *s3.S3
	sess    *session.Session
	objects []*s3.Object
	objIdx  *uint64
}

// NewRawSource lists bucket/prefix in region and prepares the readers.
func NewRawSource(region, bucket, prefix string) (*RawSource, error) {
	idx := uint64(0)
	rs := &RawSource{
		region: region,
		bucket: bucket,
		prefix: prefix,
		objIdx: &idx,
	}
	var err error
	rs.sess, err = session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, errors.Wrap(err, "getting aws session")
	}
	rs.s3 = s3.New(rs.sess)
	resp, err := rs.s3.ListObjects(&s3.ListObjectsInput{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing objects")
	}
	rs.objects = resp.Contents
	return rs, nil
}

// ParseToken splits an "s3://bucket/prefix" source token.
func ParseToken(token string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(token, "s3://") {
		return "", "", errors.Errorf("not an s3 token: %q", token)
	}
	rest := strings.TrimPrefix(token, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		return "", "", errors.Errorf("no bucket in s3 token %q", token)
	}
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}

type objReader struct {
	name string
	body io.ReadCloser
}

func (o *objReader) Read(buf []byte) (int, error) { return o.body.Read(buf) }
func (o *objReader) Close() error                 { return o.body.Close() }
func (o *objReader) Name() string                 { return o.name }

// NextReader fetches the next object; io.EOF when the listing is done.
func (rs *RawSource) NextReader() (cdk.NamedReadCloser, error) {
	idx := atomic.AddUint64(rs.objIdx, 1) - 1
	if int(idx) >= len(rs.objects) {
		return nil, io.EOF
	}
	obj := rs.objects[idx]
	result, err := rs.s3.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(rs.bucket),
		Key:    aws.String(*obj.Key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", *obj.Key)
	}
	return &objReader{name: rs.bucket + "/" + *obj.Key, body: result.Body}, nil
}
