package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockmeshdb/coordinator/errors"
	"github.com/blockmeshdb/coordinator/storage"
)

func TestSchemeFor(t *testing.T) {
	cases := []struct {
		scheme string
		want   string
	}{
		{"local", "file"},
		{"S3", "s3"},
		{"gs", "gs"},
	}
	for _, c := range cases {
		got, err := storage.SchemeFor(c.scheme)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestSchemeForAbfsIsUnwired(t *testing.T) {
	_, err := storage.SchemeFor("abfs")
	if assert.Error(t, err) {
		assert.True(t, errors.Is(err, storage.ErrCodeOutOfRange))
	}
}

func TestSchemeForUnknown(t *testing.T) {
	_, err := storage.SchemeFor("ftp")
	if assert.Error(t, err) {
		assert.True(t, errors.Is(err, storage.ErrCodeOutOfRange))
	}
}
