// Package config loads the ankrmcpd JSON configuration, merges secrets from
// the environment and optional .env files, and fills in defaults relative to
// the configuration file's directory.
package config
