// Package config persists the set of known devices, their editable
// fields, and the engine's network bindings (UMD, command-port, MIDI,
// control API) in a single YAML document, loaded and hot-reloaded with
// spf13/viper and fsnotify.
//
// ConfigManager is the single writer: every mutation goes through its
// upsert/remove/mark* methods, which diff against the in-memory document,
// record per-field edit history, and rewrite the file atomically only
// when the serialized form actually changes.
package config
