package internal

import (
	"fmt"
	"os"

	"github.com/DreamCats/tweetsearch/internal/config"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "0.3.0"

// PrintConfigHint tells the user where the configuration lives and what to
// run next.
func PrintConfigHint(path string) {
	fmt.Fprintf(os.Stderr, `Configuration: %s

The default template uses the offline "local" embedder. To use OpenAI instead:

embedding:
  provider: openai
  api_key: your-openai-api-key   # or set OPENAI_API_KEY
  model: text-embedding-3-small
  dimensions: 1536

Usage:
  1. Point source.path at your tweets.json (or a CSV with text,date columns)
  2. Run: tweetsearch index
  3. Search: tweetsearch search "space travel"
`, path)
}

// ConfigPath resolves the --config flag against the default location.
func ConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return config.DefaultConfigPath()
}
