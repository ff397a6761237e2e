// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package state persists installer configuration across phases as a flat
// KEY=value file readable by shell-based downstream stages.
package state

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Well-known configuration keys. Downstream phases may append their own.
const (
	KeyBootMode           = "BOOT_MODE"
	KeyPartitionTable     = "PARTITION_TABLE"
	KeyRootPartition      = "ROOT_PARTITION"
	KeySwapPartition      = "SWAP_PARTITION"
	KeyEFIPartition       = "EFI_PARTITION"
	KeyHomePartition      = "HOME_PARTITION"
	KeyRootFS             = "ROOT_FS"
	KeyPartitionScheme    = "PARTITION_SCHEME"
	KeyBootloader         = "BOOTLOADER"
	KeyCPUVendor          = "CPU_VENDOR"
	KeyMicrocodeInstalled = "MICROCODE_INSTALLED"
)

// DefaultPath is the transient config location used while the target is
// not yet mounted.
const DefaultPath = "/tmp/installer.conf"

// TargetPath is the config location under a mounted installation root.
func TargetPath(target string) string {
	return filepath.Join(target, "root", "installer.conf")
}

// Config is an ordered set of KEY=value pairs. Values are plain tokens and
// paths; no quoting or escaping is performed.
type Config struct {
	keys   []string
	values map[string]string
}

// New returns an empty Config.
func New() *Config {
	return &Config{
		values: map[string]string{},
	}
}

// Load reads a config file. A missing file yields an empty Config; phases
// must tolerate any missing key anyway.
func Load(path string) (*Config, error) {
	c := New()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}

		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("load config %s: malformed line %q", path, line)
		}

		c.Set(key, value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	return c, nil
}

// Set records a value, preserving first-insertion order for output.
func (c *Config) Set(key, value string) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}

	c.values[key] = value
}

// Get returns the value for key, or "" when absent.
func (c *Config) Get(key string) string {
	return c.values[key]
}

// Lookup returns the value for key and whether it is present.
func (c *Config) Lookup(key string) (string, bool) {
	v, ok := c.values[key]

	return v, ok
}

// Keys returns the keys in output order.
func (c *Config) Keys() []string {
	return append([]string(nil), c.keys...)
}

// Merge adds entries from other which are not yet present; the receiver's
// values win. A re-running phase merges the on-disk file into its freshly
// recorded values, so keys appended by other writers survive the re-run
// while the phase's own keys are refreshed.
func (c *Config) Merge(other *Config) {
	for _, key := range other.keys {
		if _, ok := c.values[key]; !ok {
			c.Set(key, other.values[key])
		}
	}
}

// Encode renders the file body.
func (c *Config) Encode() []byte {
	var buf bytes.Buffer

	for _, key := range c.keys {
		fmt.Fprintf(&buf, "%s=%s\n", key, c.values[key])
	}

	return buf.Bytes()
}

// Save writes the config to every given path, creating parent directories
// as needed. Writing the same config to both the transient location and
// the mounted target keeps the two copies identical.
func (c *Config) Save(paths ...string) error {
	body := c.Encode()

	for _, path := range paths {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("save config %s: %w", path, err)
		}

		if err := os.WriteFile(path, body, 0o600); err != nil {
			return fmt.Errorf("save config %s: %w", path, err)
		}
	}

	return nil
}
