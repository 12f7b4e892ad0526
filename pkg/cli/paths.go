package cli

import (
	"os"
	"path/filepath"
)

// Paths locates the per-app directories under ~/.lmnt.
type Paths struct {
	AppName string
	HomeDir string
}

// NewPaths creates a Paths for the given app rooted at the user's home.
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{
		AppName: appName,
		HomeDir: home,
	}, nil
}

// BaseDir returns ~/.lmnt.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// AppDir returns ~/.lmnt/<app>.
func (p *Paths) AppDir() string {
	return filepath.Join(p.BaseDir(), p.AppName)
}

// ConfigFile returns ~/.lmnt/<app>/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.AppDir(), DefaultConfigFile)
}
