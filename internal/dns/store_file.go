package dns

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tunnelkeep/tunnelkeepd/internal/fsutil"
)

// FileStore is a Store backed by one JSON file per service under a
// directory. It stands in for the platform-specific per-service resolver
// store (e.g. a system network-manager D-Bus API) that the daemon would
// delegate to in a full build; the file-per-service layout keeps writes
// atomic via fsutil.WriteFileAtomic, matching how the daemon persists every
// other piece of local state.
type FileStore struct {
	Dir string
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// if it does not already exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) servicePath(service string) string {
	return filepath.Join(f.Dir, service+".json")
}

// Services lists one service per "<service>.json" file in the store
// directory; subdirectories and other files are ignored.
func (f *FileStore) Services() ([]string, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var services []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".json"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			services = append(services, name[:len(name)-len(suffix)])
		}
	}
	return services, nil
}

// Get returns the current resolver configuration for a service.
func (f *FileStore) Get(service string) (ResolverConfig, error) {
	data, err := os.ReadFile(f.servicePath(service))
	if err != nil {
		if os.IsNotExist(err) {
			return ResolverConfig{}, ErrNoConfig
		}
		return ResolverConfig{}, err
	}
	var cfg ResolverConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ResolverConfig{}, err
	}
	return cfg, nil
}

// Set writes the resolver configuration for a service.
func (f *FileStore) Set(service string, cfg ResolverConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(f.Dir, service+".json", data, 0o644)
}

// Remove deletes a service's DNS configuration file.
func (f *FileStore) Remove(service string) error {
	err := os.Remove(f.servicePath(service))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
