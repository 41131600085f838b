// Package config loads, validates and watches the proxy's YAML
// configuration. Values support ${VAR} and ${VAR:-default} environment
// variable substitution.
package config
