package internal

import (
	"fmt"
	"os"

	"github.com/DreamCats/tweetsearch/internal/config"
)

// LoadConfig reads the YAML configuration. When the default file is missing
// it writes the template first, so a fresh install runs with the local
// embedder. An explicit --config path must exist.
func LoadConfig(flagPath string) (*config.Config, error) {
	if flagPath != "" {
		return config.LoadFromFile(flagPath)
	}

	cfg, err := config.Load()
	if err == nil || !config.IsConfigNotFound(err) {
		return cfg, err
	}

	path := config.DefaultConfigPath()
	created, werr := config.WriteDefaultTemplate(path)
	if werr != nil {
		return nil, fmt.Errorf("%w (writing template: %v)", err, werr)
	}
	if created {
		fmt.Fprintf(os.Stderr, "Created default config at %s\n", path)
	}
	return config.LoadFromFile(path)
}
