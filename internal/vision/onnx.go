package vision

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// InitRuntime points ONNX Runtime at the platform shared library and
// initializes the environment. Call once per process before loading models.
func InitRuntime() error {
	ort.SetSharedLibraryPath(libPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

// DestroyRuntime tears the environment down. Pair with InitRuntime.
func DestroyRuntime() {
	_ = ort.DestroyEnvironment()
}

func libPath() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
