package loader

import (
	"errors"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/contextsearch/pkg/config"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStorage() config.StorageConfig {
	return config.StorageConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
	}
}

func TestFromConfig(t *testing.T) {
	src, err := FromConfig(config.DocumentConfig{Path: "/data/book.txt"}, testStorage())
	require.NoError(t, err)
	assert.Equal(t, FileSource{Path: "/data/book.txt"}, src)

	src, err = FromConfig(config.DocumentConfig{Bucket: "corpus", Object: "book.txt"}, testStorage())
	require.NoError(t, err)
	assert.IsType(t, &ObjectSource{}, src)

	_, err = FromConfig(config.DocumentConfig{}, testStorage())
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.False(t, isTransient(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.True(t, isTransient(minio.ErrorResponse{Code: "SlowDown"}))
	assert.True(t, isTransient(errors.New("dial tcp: connection refused")))
}
