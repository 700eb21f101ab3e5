// Package config loads procvfs configuration from a YAML file and the
// environment.
//
// # Sources
//
// Load consults, in increasing priority: built-in defaults, the config file
// and PROCVFS_* environment variables. Nested keys map to underscores:
//
//	PROCVFS_LOG_LEVEL=debug
//	PROCVFS_RUNTIME_HOST_ENABLED=false
//	PROCVFS_SERVER_ADDR=0.0.0.0:7070
//
// Without an explicit path, procvfs.yaml is searched for in the working
// directory, the user config directory and /etc/procvfs.
//
// # Example
//
//	plugin_dir: /usr/lib/procvfs
//	capacity: 64
//	runtime_host:
//	  enabled: true
//	  versions: [lua54, lua53, lua51]
//	log:
//	  level: debug
//	  format: json
//
// # Runtime directory
//
// When the runtime host resolves its interpreter from a new directory,
// SaveRuntimeDir writes runtime_host.dir back to the config file. The edit is
// applied to the parsed YAML tree so comments and unrelated keys survive, and
// the file is replaced atomically.
package config
