package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSReader_Read(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o600))

	data, err := NewOSReader().Read(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "package main\n", string(data))
}

func TestOSReader_Errors(t *testing.T) {
	dir := t.TempDir()

	big := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("x", 64)), 0o600))

	bin := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(bin, []byte{0x7f, 'E', 'L', 'F', 0x00}, 0o600))

	r := &OSReader{MaxBytes: 16}
	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "missing.js"), ErrNotFound},
		{"too large", big, ErrTooLarge},
		{"directory", dir, ErrNotRegular},
		{"binary", bin, ErrBinary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Read(context.Background(), tt.path)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOSReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOSReader().Read(ctx, "/does/not/matter")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectMIME(t *testing.T) {
	assert.Equal(t, "text/typescript", DetectMIME("src/App.TSX"))
	assert.Equal(t, "text/x-go", DetectMIME("main.go"))
	assert.Equal(t, "text/plain", DetectMIME("Makefile"))
}
