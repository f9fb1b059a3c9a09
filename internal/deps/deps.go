// Package deps checks for the external binaries and shared libraries the
// daemon needs before it starts capturing audio: the ONNX Runtime shared
// library the classifiers load, and the PortAudio input device the
// operator configured.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines an external dependency the daemon relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// CheckSharedLibrary reports whether a shared library exists at path. ONNX
// Runtime is distributed as a standalone .so/.dylib/.dll rather than an
// executable on PATH, so it can't go through CheckBinaries.
func CheckSharedLibrary(name, path string) Status {
	status := Status{Name: name, Command: path}
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		status.Detail = "library path not configured"
		return status
	}
	info, err := os.Stat(trimmed)
	if err != nil {
		status.Detail = fmt.Sprintf("library %q not found", trimmed)
		return status
	}
	if info.IsDir() {
		status.Detail = fmt.Sprintf("%q is a directory, not a library", trimmed)
		return status
	}
	status.Available = true
	return status
}

// CheckAudioDevice reports whether a capture device name was configured.
// It cannot confirm the device is actually present without opening the
// PortAudio stream, which daemon startup does separately; this is a cheap
// pre-flight check for the obviously-unconfigured case.
func CheckAudioDevice(deviceName string) Status {
	status := Status{Name: "Audio capture device", Command: deviceName}
	if strings.TrimSpace(deviceName) == "" {
		status.Detail = "audio.device_name not configured"
		return status
	}
	status.Available = true
	return status
}
