package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{
			name:     "basic snapshot load",
			filename: "snapshot.json",
			data:     []byte(`{"entries": [{"id": "1", "name": "Chicken rice"}]}`),
		},
		{
			name:     "empty snapshot file",
			filename: "empty.json",
			data:     []byte(`{"entries": []}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filePath := filepath.Join(tmpDir, tt.filename)
			require.NoError(t, os.WriteFile(filePath, tt.data, 0644))

			loaded, err := NewFileSource(filePath).Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.data, loaded)
		})
	}

	t.Run("load nonexistent snapshot", func(t *testing.T) {
		_, err := NewFileSource(filepath.Join(tmpDir, "nonexistent.json")).Load(context.Background())
		assert.Error(t, err)
		assert.True(t, os.IsNotExist(err))
	})
}

type fakeGetObject struct {
	body string
	err  error
	in   *s3.GetObjectInput
}

func (f *fakeGetObject) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3Source(t *testing.T) {
	fake := &fakeGetObject{body: `{"entries":[]}`}
	data, err := NewS3Source(fake, "bucket", "ref/snapshot.json").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"entries":[]}`, string(data))
	assert.Equal(t, "bucket", aws.ToString(fake.in.Bucket))
	assert.Equal(t, "ref/snapshot.json", aws.ToString(fake.in.Key))

	fake = &fakeGetObject{err: errors.New("access denied")}
	_, err = NewS3Source(fake, "bucket", "k").Load(context.Background())
	assert.ErrorContains(t, err, "failed to get snapshot object from S3")
}

func TestTestSource(t *testing.T) {
	data, err := NewTestSource([]byte("x")).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)

	_, err = NewTestSourceWithError().Load(context.Background())
	assert.Error(t, err)
}
