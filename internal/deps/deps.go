// Package deps checks availability of the external binaries a conversion
// needs before any job runs.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"rebind/internal/config"
)

// Requirement defines an external dependency rebind relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// SearchDir is consulted in addition to PATH, matching the bundled tool
	// directory the invoker prepends at run time.
	SearchDir string
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

// Requirements derives the external binary list from configuration.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "enhancement engine",
			Command:     cfg.EnhancementBinary(),
			Description: "image enhancement engine invoked per conversion",
			SearchDir:   cfg.Enhancement.BundledToolDir,
		},
	}
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
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			if !foundInDir(req.SearchDir, cmd) {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
				results = append(results, status)
				continue
			}
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

func foundInDir(dir, cmd string) bool {
	dir = strings.TrimSpace(dir)
	if dir == "" || filepath.Base(cmd) != cmd {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, cmd))
	return err == nil && !info.IsDir()
}

// MissingRequired returns the non-optional requirements that are unavailable.
func MissingRequired(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Optional && !status.Available {
			missing = append(missing, status)
		}
	}
	return missing
}
