// Package config loads StreamForge configuration from JSON or YAML files
// with STREAMFORGE_* environment overlays applied on top.
package config
