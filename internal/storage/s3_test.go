package storage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseObjectURL(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{name: "simple", raw: "s3://worlds/abc.zip", wantBucket: "worlds", wantKey: "abc.zip"},
		{name: "nested key", raw: "s3://worlds/2024/06/abc.zip", wantBucket: "worlds", wantKey: "2024/06/abc.zip"},
		{name: "no key", raw: "s3://worlds/", wantErr: true},
		{name: "http", raw: "https://cdn.example.com/abc.zip", wantErr: true},
		{name: "no bucket", raw: "s3:///abc.zip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseObjectURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestPresignURL_Disabled(t *testing.T) {
	p, err := NewPresigner(&config.StorageConfig{}, testLogger())
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	_, err = p.PresignURL(context.Background(), "s3://worlds/abc.zip")
	assert.ErrorIs(t, err, domain.ErrStorageNotAvailable)

	direct, err := p.PresignURL(context.Background(), "https://cdn.example.com/abc.zip")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/abc.zip", direct)
}

func TestPresignURL_SignsLocally(t *testing.T) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String("us-east-1"),
		Endpoint:         aws.String("http://localhost:9000"),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials("AKIDEXAMPLE", "secret", ""),
	})
	require.NoError(t, err)

	cfg := &config.StorageConfig{Enabled: true, BucketPrefix: "dev-", PresignTTL: 5 * time.Minute}
	p := NewPresignerWithSession(sess, cfg, testLogger())

	signed, err := p.PresignURL(context.Background(), "s3://worlds/2024/abc.zip")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(signed, "http://localhost:9000/dev-worlds/2024/abc.zip?"), signed)
	assert.Contains(t, signed, "X-Amz-Signature=")
	assert.Contains(t, signed, "X-Amz-Expires=300")
}
