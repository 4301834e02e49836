package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*S3Options)(nil)

// S3Options configures the object store that holds driver report
// attachments. An empty endpoint disables attachment uploads.
type S3Options struct {
	Endpoint           string        `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID        string        `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey    string        `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL             bool          `json:"use-ssl" mapstructure:"use-ssl"`
	InsecureSkipVerify bool          `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
	BucketName         string        `json:"bucket-name" mapstructure:"bucket-name"`
	Region             string        `json:"region" mapstructure:"region"`
	PresignExpiry      time.Duration `json:"presign-expiry" mapstructure:"presign-expiry"`
}

func NewS3Options() *S3Options {
	return &S3Options{
		UseSSL:        true,
		BucketName:    "report-attachments",
		Region:        "us-east-1",
		PresignExpiry: 24 * time.Hour,
	}
}

// Enabled reports whether an object store is configured.
func (o *S3Options) Enabled() bool { return o != nil && o.Endpoint != "" }

func (o *S3Options) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	errs := []error{}
	if o.BucketName == "" {
		errs = append(errs, errors.New("--s3.bucket-name is required when --s3.endpoint is set"))
	}
	if o.PresignExpiry <= 0 || o.PresignExpiry > 7*24*time.Hour {
		errs = append(errs, errors.New("--s3.presign-expiry must be between 1s and 7 days"))
	}
	return errs
}

func (o *S3Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, "s3.endpoint", o.Endpoint, "S3 service endpoint for report attachments (e.g. minio.local:9000). Empty disables uploads.")
	fs.StringVar(&o.AccessKeyID, "s3.access-key-id", o.AccessKeyID, "S3 access key ID")
	fs.StringVar(&o.SecretAccessKey, "s3.secret-access-key", o.SecretAccessKey, "S3 secret access key")
	fs.BoolVar(&o.UseSSL, "s3.use-ssl", o.UseSSL, "Enable SSL for S3 connection")
	fs.BoolVar(&o.InsecureSkipVerify, "s3.insecure-skip-verify", o.InsecureSkipVerify, "Skip S3 TLS certificate verification (self-signed development endpoints only)")
	fs.StringVar(&o.BucketName, "s3.bucket-name", o.BucketName, "S3 bucket name for report attachments")
	fs.StringVar(&o.Region, "s3.region", o.Region, "S3 region")
	fs.DurationVar(&o.PresignExpiry, "s3.presign-expiry", o.PresignExpiry, "Lifetime of attachment download URLs")
}
