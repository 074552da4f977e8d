// Package config loads server configuration from a YAML file, RECALL_-prefixed
// environment variables and an optional .env file.
//
// Precedence, lowest first: built-in defaults, recall.yaml, environment.
// Variables from .env join the environment but never override one already set.
//
//	cfg, err := config.Load("")   // search ./recall.yaml and ~/.recall/recall.yaml
//	cfg, err := config.Load(path) // explicit file; missing file is an error
package config
