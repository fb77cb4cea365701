package config

import (
	"fmt"
	"strings"
)

const (
	BackendHost   = "host"
	BackendWebGPU = "webgpu"
)

func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendHost
	}
	switch backend {
	case BackendHost, BackendWebGPU:
		return backend, nil
	case "cpu":
		return BackendHost, nil
	case "gpu", "wgpu":
		return BackendWebGPU, nil
	default:
		return "", fmt.Errorf("invalid backend %q (expected %s|%s)", raw, BackendHost, BackendWebGPU)
	}
}
