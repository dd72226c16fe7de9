package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = "seqstore Configuration File\n" +
	"Every value can be overridden with an environment variable:\n" +
	"SEQSTORE_<SECTION>_<KEY>, e.g. SEQSTORE_LOGGING_LEVEL=DEBUG\n"

// sectionComments are written above the top-level keys of a generated file.
var sectionComments = map[string]string{
	"logging": "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json),\noutput (stdout, stderr or a file path)",
	"server":  "Process settings",
	"store": "Store layout. temp_dir and store_dir are relative to root unless\n" +
		"absolute and must live on the same volume. The temp dir is wiped on startup.",
	"metrics": "Prometheus endpoint (/metrics and /healthz)",
	"forwarder": "Forwarder: drains committed units, in order, into a sink.\n" +
		"sink.type: filesystem | s3 | memory\n" +
		"cursor.type: badger | memory",
	"retention": "Retention: periodically delete delivered units older than max_age.\n" +
		"With the forwarder enabled only units it has forwarded are eligible.",
	"registry": "Extra directories reported by `seqstore stats` and the root metrics,\n" +
		"in addition to the temp and store roots. Example:\n" +
		"  roots:\n" +
		"    - name: archive\n" +
		"      path: /var/lib/seqstore/archive",
}

// GenerateYAMLWithComments renders cfg as YAML with a header and a comment
// above each section.
func GenerateYAMLWithComments(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	// doc is a mapping node: keys and values alternate
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}
	if len(doc.Content) > 0 {
		doc.Content[0].HeadComment = configHeader + "\n" + doc.Content[0].HeadComment
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// InitConfig writes a default configuration file to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns the path of the written file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := GenerateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
