package s3sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	bucket, key, err := ParseURL("s3://my-bucket/archives/run-1.ddup")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "archives/run-1.ddup", key)
}

func TestParseURLRejectsNonS3Scheme(t *testing.T) {
	_, _, err := ParseURL("https://example.com/key")
	require.Error(t, err)
}

func TestParseURLRejectsMissingKey(t *testing.T) {
	_, _, err := ParseURL("s3://bucket-only")
	require.Error(t, err)

	_, _, err = ParseURL("s3://bucket/")
	require.Error(t, err)
}
