// Package onnxrt wraps ONNX Runtime environment setup and session creation.
package onnxrt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// Supported device names.
const (
	DeviceAuto = "auto"
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// EnvSharedLibraryPath overrides shared library discovery.
const EnvSharedLibraryPath = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// Config controls runtime initialization.
type Config struct {
	SharedLibraryPath string // explicit path to libonnxruntime
	Device            string // auto | cuda | cpu
	IntraOpThreads    int    // 0 lets onnxruntime decide
	CUDADeviceID      int
}

// Runtime owns the process-wide onnxruntime environment.
type Runtime struct {
	cfg Config
}

// Init locates the shared library and initializes the environment.
func Init(cfg Config) (*Runtime, error) {
	cfg.Device = strings.ToLower(strings.TrimSpace(cfg.Device))
	if cfg.Device == "" {
		cfg.Device = DeviceAuto
	}
	switch cfg.Device {
	case DeviceAuto, DeviceCUDA, DeviceCPU:
	default:
		return nil, fmt.Errorf("unknown device %q (want auto, cuda or cpu)", cfg.Device)
	}

	libPath := ResolveSharedLibraryPath(cfg.SharedLibraryPath)
	if libPath == "" {
		return nil, errors.New("onnxruntime shared library not found; set onnx.shared_library_path or " + EnvSharedLibraryPath)
	}
	ort.SetSharedLibraryPath(libPath)

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	slog.Info("onnxruntime initialized", "library", libPath, "device", cfg.Device)
	return &Runtime{cfg: cfg}, nil
}

// Close tears down the environment. Sessions must be destroyed first.
func (r *Runtime) Close() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// NewSession creates a session on the best available device and reports which one was used.
// With device "auto" a CUDA failure falls back to CPU; with "cuda" it is returned as an error.
func (r *Runtime) NewSession(modelPath string, inputs, outputs []string) (*ort.DynamicAdvancedSession, string, error) {
	if r.cfg.Device != DeviceCPU {
		s, err := r.newSession(modelPath, inputs, outputs, true)
		if err == nil {
			return s, DeviceCUDA, nil
		}
		if r.cfg.Device == DeviceCUDA {
			return nil, "", fmt.Errorf("create cuda session: %w", err)
		}
		slog.Info("cuda unavailable, using cpu", "model", modelPath, "reason", err)
	}

	s, err := r.newSession(modelPath, inputs, outputs, false)
	if err != nil {
		return nil, "", fmt.Errorf("create cpu session: %w", err)
	}
	return s, DeviceCPU, nil
}

func (r *Runtime) newSession(modelPath string, inputs, outputs []string, cuda bool) (*ort.DynamicAdvancedSession, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()

	if r.cfg.IntraOpThreads > 0 {
		if err := opts.SetIntraOpNumThreads(r.cfg.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	if cuda {
		cudaOpts, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, err
		}
		defer cudaOpts.Destroy()
		if err := cudaOpts.Update(map[string]string{"device_id": fmt.Sprint(r.cfg.CUDADeviceID)}); err != nil {
			return nil, err
		}
		if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
			return nil, err
		}
	}

	return ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, opts)
}

// ResolveSharedLibraryPath returns the configured path, the env override, or the first
// library found in common install locations. extraDirs are probed first.
func ResolveSharedLibraryPath(configured string, extraDirs ...string) string {
	if p := strings.TrimSpace(configured); p != "" {
		return p
	}
	if env := strings.TrimSpace(os.Getenv(EnvSharedLibraryPath)); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := append(append([]string{}, extraDirs...),
		".",
		"lib",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	)

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
