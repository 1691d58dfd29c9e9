package designer

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type mockCloser struct {
	closeErr   error
	closeCalls int
}

func (m *mockCloser) Close() error {
	m.closeCalls++
	return m.closeErr
}

func TestCloseWithLog(t *testing.T) {
	tests := []struct {
		name    string
		closer  *mockCloser
		wantLog string
	}{
		{name: "success", closer: &mockCloser{}},
		{name: "failure", closer: &mockCloser{closeErr: errors.New("connection reset")}, wantLog: "connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			CloseWithLog(tt.closer, slog.New(slog.NewTextHandler(&buf, nil)), "sqlite backend")

			assert.Equal(t, 1, tt.closer.closeCalls)
			if tt.wantLog == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), "failed to close resource")
			assert.Contains(t, buf.String(), "sqlite backend")
			assert.Contains(t, buf.String(), tt.wantLog)
		})
	}
}

func TestCloseWithLog_Nil(t *testing.T) {
	var buf bytes.Buffer
	CloseWithLog(nil, slog.New(slog.NewTextHandler(&buf, nil)), "nothing")
	assert.Empty(t, buf.String())

	// A nil logger falls back to the default one.
	CloseWithLog(&mockCloser{}, nil, "default logger")
}
