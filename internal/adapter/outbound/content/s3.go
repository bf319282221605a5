package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ObjectAPI is the subset of the S3 client used to serve the site.
type ObjectAPI interface {
	GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error)
	HeadObjectWithContext(ctx aws.Context, input *s3.HeadObjectInput, opts ...request.Option) (*s3.HeadObjectOutput, error)
}

// S3Config locates the site in a bucket.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client creates an S3 client. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies.
func NewS3Client(cfg S3Config) (*s3.S3, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.ForcePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return s3.New(sess), nil
}

// S3Handler serves the site from bucket objects under a key prefix.
type S3Handler struct {
	api     ObjectAPI
	bucket  string
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewS3Handler creates a handler reading from api.
func NewS3Handler(api ObjectAPI, bucket, prefix string, logger *slog.Logger) *S3Handler {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Handler{
		api:     api,
		bucket:  bucket,
		prefix:  prefix,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

func (h *S3Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	name := objectPath(r.URL.Path)
	out, err := h.get(ctx, name, r.Header.Get("If-None-Match"))
	if err != nil {
		switch {
		case isNotModified(err):
			w.WriteHeader(http.StatusNotModified)
		case isNoSuchKey(err):
			if !strings.HasSuffix(r.URL.Path, "/") && !hasExtension(name) && h.exists(ctx, path.Join(name, IndexFile)) {
				redirectToDir(w, r)
				return
			}
			h.notFound(ctx, w, r)
		default:
			h.logger.Error("s3 get object failed", "bucket", h.bucket, "key", h.prefix+name, "error", err)
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		}
		return
	}
	defer func() { _ = out.Body.Close() }()

	h.writeObject(w, r, name, out, http.StatusOK)
}

func (h *S3Handler) get(ctx context.Context, name, ifNoneMatch string) (*s3.GetObjectOutput, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.prefix + name),
	}
	if ifNoneMatch != "" {
		input.IfNoneMatch = aws.String(ifNoneMatch)
	}
	return h.api.GetObjectWithContext(ctx, input)
}

func (h *S3Handler) exists(ctx context.Context, name string) bool {
	_, err := h.api.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.prefix + name),
	})
	return err == nil
}

func (h *S3Handler) notFound(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	out, err := h.get(ctx, NotFoundFile, "")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = out.Body.Close() }()
	h.writeObject(w, r, NotFoundFile, out, http.StatusNotFound)
}

func (h *S3Handler) writeObject(w http.ResponseWriter, r *http.Request, name string, out *s3.GetObjectOutput, status int) {
	contentType := aws.StringValue(out.ContentType)
	if contentType == "" || contentType == "binary/octet-stream" {
		contentType = mime.TypeByExtension(path.Ext(name))
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if out.ContentLength != nil {
		w.Header().Set("Content-Length", strconv.FormatInt(*out.ContentLength, 10))
	}
	if etag := aws.StringValue(out.ETag); etag != "" && status == http.StatusOK {
		w.Header().Set("ETag", etag)
	}
	if out.LastModified != nil {
		w.Header().Set("Last-Modified", out.LastModified.UTC().Format(http.TimeFormat))
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, out.Body); err != nil {
		h.logger.Debug("error copying s3 object body", "key", h.prefix+name, "error", err)
	}
}

func isNoSuchKey(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	var reqErr awserr.RequestFailure
	return errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound
}

func isNotModified(err error) bool {
	var reqErr awserr.RequestFailure
	return errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotModified
}
