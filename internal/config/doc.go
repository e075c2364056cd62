// Package config loads ghostpad's configuration.
//
// Values come from four layers, later layers overriding earlier ones:
//
//  1. built-in defaults
//  2. the configuration file (TOML or YAML, chosen by extension)
//  3. environment variables with the GHOSTPAD_ prefix
//  4. runtime overrides made through Set
//
// Typed section accessors (AI, Ghost, Completion, Logging, Settings)
// return snapshots. Every reload and every Set is broadcast through the
// notify package, which is also how the settings store announces changes.
//
// # Sub-packages
//
//   - loader: file and environment sources
//   - notify: change broadcast
//   - watcher: file change detection for live reload
package config
