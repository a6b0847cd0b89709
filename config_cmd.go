package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
)

const defaultConfig = `# synthesis engine: gemini or mock
engine: ""
# voice name passed to the engine
voice: "Kore"
# style instruction prepended to every line, e.g. "Narrate dramatically:"
prompt: ""
# max concurrent lines per file (0 = unbounded)
max_inflight: 0
# serve Prometheus metrics on this address, e.g. ":9090"
metrics_addr: ""
# verbose logging
debug: false

log:
  # also write logs to this file
  file: ""

output:
  # deliverables go to <dir>/<file name>/
  dir: "output"
  # merged file: auto, concat, timed or none
  merge: "auto"
  # write one WAV per line next to the merged file
  lines: true

gemini:
  # prefer the GEMINI_API_KEY environment variable
  # api_key: ""
  base_url: "https://generativelanguage.googleapis.com/v1beta"
  speech_model: "gemini-2.5-flash-preview-tts"
  rewrite_model: "gemini-2.5-flash"
  timeout: "90s"
  requests_per_minute: 60
  # rephrase a line once when moderation blocks it
  rewrite: true

mock:
  ms_per_rune: 60
  latency: "0s"
  # lines containing these words are blocked until rewritten
  block_words: []

cache:
  enabled: true
  # defaults to the user cache directory
  dir: ""
  memory_mb: 64
  # 0 keeps the cache in memory only
  disk_mb: 512
  ttl: "720h"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the mangarecap config file",
	Long:    paragraph(fmt.Sprintf("\n%s the mangarecap config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("mangarecap config\nmangarecap config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	// the file may not exist yet, so skip loading it
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(*cobra.Command, []string) error {
		file := configPath()
		if err := ensureConfigFile(file); err != nil {
			return err
		}

		c, err := editor.Cmd("mangarecap", file)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", file)
		return nil
	},
}

// configPath is the --config flag if given, else the discovered or default file.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return defaultConfigFile
}

func ensureConfigFile(file string) error {
	if ext := path.Ext(file); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
