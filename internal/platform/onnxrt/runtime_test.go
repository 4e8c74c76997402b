package onnxrt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSharedLibraryPath_Precedence(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "libonnxruntime.so")
	require.NoError(t, os.WriteFile(lib, []byte("stub"), 0o644))

	t.Setenv(EnvSharedLibraryPath, "/from/env/libonnxruntime.so")

	assert.Equal(t, "/explicit/lib.so", ResolveSharedLibraryPath("/explicit/lib.so", dir))
	assert.Equal(t, "/from/env/libonnxruntime.so", ResolveSharedLibraryPath("", dir))

	t.Setenv(EnvSharedLibraryPath, "")
	assert.Equal(t, lib, ResolveSharedLibraryPath("", dir))
}

func TestInit_RejectsUnknownDevice(t *testing.T) {
	_, err := Init(Config{Device: "tpu"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown device")
}
