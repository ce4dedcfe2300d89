// Package config loads the dialog service configuration from a JSON or YAML
// file, fills in defaults and resolves secrets referenced through environment
// variables.
package config
