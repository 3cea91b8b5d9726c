package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "valid http URL", url: "http://example.com"},
		{name: "valid https URL with port and path", url: "https://example.com:8443/api/v1"},
		{name: "empty URL", url: "", wantErr: true},
		{name: "missing scheme", url: "example.com", wantErr: true},
		{name: "unsupported scheme", url: "ftp://example.com", wantErr: true},
		{name: "missing host", url: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateHeaderName(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateHeaderName("X-Custom-Header"))
	assert.NoError(t, ValidateHeaderName("content-type"))
	assert.Error(t, ValidateHeaderName(""))
	assert.Error(t, ValidateHeaderName("Bad Header"))
	assert.Error(t, ValidateHeaderName("Bad:Header"))
}

func TestValidateHTTPMethod(t *testing.T) {
	t.Parallel()

	for _, m := range []string{"GET", "post", "PATCH", "*"} {
		assert.NoError(t, ValidateHTTPMethod(m), m)
	}
	assert.Error(t, ValidateHTTPMethod("FETCH"))
	assert.Error(t, ValidateHTTPMethod(""))
}

func TestValidateHTTPStatusCode(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateHTTPStatusCode(200))
	assert.Error(t, ValidateHTTPStatusCode(99))
	assert.Error(t, ValidateHTTPStatusCode(600))
}

func TestValidateContextPath(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateContextPath("/"))
	assert.NoError(t, ValidateContextPath("/petstore"))
	assert.Error(t, ValidateContextPath(""))
	assert.Error(t, ValidateContextPath("petstore"))
}
