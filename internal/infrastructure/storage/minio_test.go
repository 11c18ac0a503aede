package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"

	"github.com/garyjia/expense-desk/internal/domain/entity"
)

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in           string
		wantEndpoint string
		wantSecure   bool
		wantErr      bool
	}{
		{"minio:9000", "minio:9000", false, false},
		{"http://minio:9000", "minio:9000", false, false},
		{"https://s3.example.com", "s3.example.com", true, false},
		{"http://minio:9000/", "minio:9000", false, false},
		{"http://minio:9000/foo", "", false, true},
		{"", "", false, true},
	}

	for _, tt := range tests {
		ep, secure, err := normaliseEndpoint(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.wantEndpoint, ep)
		assert.Equal(t, tt.wantSecure, secure)
	}
}

func TestTranslateMinioError(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	assert.ErrorIs(t, translateMinioError(missing), entity.ErrNotFound)

	other := errors.New("connection reset")
	err := translateMinioError(other)
	assert.NotErrorIs(t, err, entity.ErrNotFound)
	assert.ErrorIs(t, err, other)
}

func TestNewMinioReceiptStorage_IncompleteConfig(t *testing.T) {
	_, err := NewMinioReceiptStorage(t.Context(), MinioConfig{Endpoint: "minio:9000"}, nil)
	assert.Error(t, err)
}
