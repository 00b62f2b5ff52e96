package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr   = "localhost:8080"
		dbPath = "data/pivogram.db"
		data   = "data"
		public = "public"
		key    = "c29tZV9zZWNyZXQ="
		orig   = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name   string
		addr   string
		dbPath string
		data   string
		key    string
		err    bool
	}{
		{
			name:   "valid config",
			addr:   addr,
			dbPath: dbPath,
			data:   data,
			key:    key,
			err:    false,
		},
		{
			name:   "empty address",
			addr:   "",
			dbPath: dbPath,
			data:   data,
			key:    key,
			err:    true,
		},
		{
			name:   "empty database path",
			addr:   addr,
			dbPath: "",
			data:   data,
			key:    key,
			err:    true,
		},
		{
			name:   "empty data dir",
			addr:   addr,
			dbPath: dbPath,
			data:   "",
			key:    key,
			err:    true,
		},
		{
			name:   "empty signing key",
			addr:   addr,
			dbPath: dbPath,
			data:   data,
			key:    "",
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.dbPath, tc.data, public, tc.key, orig, 0)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.dbPath, config.DatabasePath, "expected database path to match")
			assert.Equal(t, orig, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, DefaultMaxHistory, config.MaxHistory, "expected default max history when unset")
			assert.NotEmpty(t, config.SigningKey, "expected signing key to be decoded and not empty")
		})
	}
}

func Test_decodeSigningSecret(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match for base64 secret: %s", tc.base64Secret)
			}
		})
	}
}
