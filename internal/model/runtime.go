package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	envLibraryPath      = "NERAPP_ONNX_LIBRARY"
	envORTLibraryPath   = "ONNXRUNTIME_SHARED_LIBRARY_PATH"
	defaultIntraThreads = 2
	defaultInterThreads = 1
)

var runtimeMu sync.Mutex

// initRuntime points onnxruntime at a shared library and initializes the
// environment once per process.
func initRuntime(modelDir, override string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	lib := strings.TrimSpace(override)
	if lib == "" {
		lib = resolveSharedLibraryPath(modelDir)
	}
	if lib == "" {
		return fmt.Errorf("onnxruntime shared library not found; set %s or install the runtime", envLibraryPath)
	}
	ort.SetSharedLibraryPath(lib)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// resolveSharedLibraryPath locates a platform onnxruntime library. The
// environment wins; otherwise common names and locations are probed.
func resolveSharedLibraryPath(modelDir string) string {
	for _, key := range []string{envLibraryPath, envORTLibraryPath} {
		if env := strings.TrimSpace(os.Getenv(key)); env != "" {
			return env
		}
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		filepath.Dir(modelDir),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

// resolveModelPath prefers the quantized export.
func resolveModelPath(dir string) string {
	for _, rel := range []string{"model.int8.onnx", "model.onnx", filepath.Join("onnx", "model.onnx")} {
		p := filepath.Join(dir, rel)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func selectOutputInfo(modelPath string) (string, []int64, error) {
	_, outputs, err := ort.GetInputOutputInfoWithOptions(modelPath, nil)
	if err != nil {
		return "", nil, err
	}
	if len(outputs) == 0 {
		return "", nil, fmt.Errorf("no outputs found")
	}
	for _, out := range outputs {
		if strings.EqualFold(out.Name, "logits") {
			return out.Name, out.Dimensions, nil
		}
	}
	if len(outputs) == 1 {
		return outputs[0].Name, outputs[0].Dimensions, nil
	}
	names := make([]string, 0, len(outputs))
	for _, out := range outputs {
		names = append(names, out.Name)
	}
	return "", nil, fmt.Errorf("multiple outputs found without logits: %v", names)
}

// buildOutputShape fills dynamic dimensions of a [batch, seq, labels] output.
func buildOutputShape(dims []int64, seqLen, numLabels int) ort.Shape {
	if len(dims) != 3 {
		return ort.NewShape(1, int64(seqLen), int64(numLabels))
	}
	shape := make([]int64, 3)
	copy(shape, dims)
	if shape[0] <= 0 {
		shape[0] = 1
	}
	if shape[1] <= 0 {
		shape[1] = int64(seqLen)
	}
	if shape[2] <= 0 {
		shape[2] = int64(numLabels)
	}
	return ort.Shape(shape)
}
