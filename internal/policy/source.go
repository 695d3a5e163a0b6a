package policy

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// EnvPolicyPath overrides the policy source location.
	EnvPolicyPath = "STRIX_POLICY_PATH"
	// DefaultPolicyFile is looked up next to the running executable.
	DefaultPolicyFile = "policies.json"
)

// Source is a backing store for the policy table. ModTime must be cheap; it
// runs on every evaluation.
type Source interface {
	Location() string
	ModTime() (time.Time, error)
	Load() (LoadedTable, error)
}

type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Location() string { return s.path }

func (s *FileSource) ModTime() (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s *FileSource) Load() (LoadedTable, error) {
	return LoadTable(s.path)
}

// DefaultPath returns DefaultPolicyFile in the executable's directory.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultPolicyFile
	}
	return filepath.Join(filepath.Dir(exe), DefaultPolicyFile)
}

// ResolvePath picks the explicit path, then the environment override, then
// the default path.
func ResolvePath(explicit string, getenv func(string) string, defaultPath string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	return firstNonEmpty(explicit, getenv(EnvPolicyPath), defaultPath)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
