package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		endpoint   string
		serverSide bool
		host       string
		port       int
		wantErr    bool
	}{
		{endpoint: "127.0.0.1:10000", serverSide: true, host: "127.0.0.1", port: 10000},
		{endpoint: ":10000", serverSide: true, host: "0.0.0.0", port: 10000},
		{endpoint: ":10000", serverSide: false, host: "127.0.0.1", port: 10000},
		{endpoint: "localhost:80", serverSide: false, host: "localhost", port: 80},
		{endpoint: "10000", wantErr: true},
		{endpoint: "", wantErr: true},
		{endpoint: "host:", wantErr: true},
		{endpoint: "host:0", wantErr: true},
		{endpoint: "host:-1", wantErr: true},
		{endpoint: "host:notaport", wantErr: true},
	}

	for _, tt := range tests {
		host, port, err := splitEndpoint(tt.endpoint, tt.serverSide)
		if tt.wantErr {
			assert.Error(t, err, "endpoint %q", tt.endpoint)
			continue
		}
		require.NoError(t, err, "endpoint %q", tt.endpoint)
		assert.Equal(t, tt.host, host, "endpoint %q", tt.endpoint)
		assert.Equal(t, tt.port, port, "endpoint %q", tt.endpoint)
	}
}
