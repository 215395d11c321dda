package config

import "fmt"

// ValidationError is a structured, user-presentable rejection reason for
// config, tally map, or port edits (spec.md §7: "Validation... rejected
// at the API boundary with a structured reason; caller is expected to
// present it.").
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Validate checks the whole document's invariants: valid ports, unique
// device indices, and well-formed tally maps.
func Validate(cfg *Config) error {
	if err := validatePort(cfg.UMD.Port, "umd.port"); err != nil {
		return err
	}
	if err := validatePort(cfg.CommandPort.Port, "command_port.port"); err != nil {
		return err
	}
	if err := validatePort(cfg.API.Port, "api.port"); err != nil {
		return err
	}
	if err := validatePort(cfg.Health.Port, "health.port"); err != nil {
		return err
	}

	seenIndex := make(map[int]string)
	for id, dc := range cfg.Devices {
		if dc.DeviceIndex < 0 || !dc.IndexAssigned {
			continue
		}
		if other, dup := seenIndex[dc.DeviceIndex]; dup {
			return &ValidationError{Field: "devices", Reason: fmt.Sprintf("device index %d assigned to both %q and %q", dc.DeviceIndex, other, id)}
		}
		seenIndex[dc.DeviceIndex] = id
	}

	for idx, tm := range cfg.TallyMaps {
		if err := ValidateTallyMap(cfg, idx, tm); err != nil {
			return err
		}
	}
	return nil
}

func validatePort(port int, field string) error {
	if port < 1 || port > 65535 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("port %d out of range [1,65535]", port)}
	}
	return nil
}

// ValidateTallyMap implements the checkValid() semantics from spec.md
// §4.H: deviceIndex must resolve to a known device, each non-empty source
// must carry a tally type, program and preview sources must differ, and
// tally indices must fall within the UMD listener's declared range.
func ValidateTallyMap(cfg *Config, deviceIndex int, tm TallyMap) error {
	if deviceIndex < 0 {
		return &ValidationError{Field: "tally_map.device_index", Reason: "device index must be non-negative"}
	}
	if !deviceIndexKnown(cfg, deviceIndex) {
		return &ValidationError{Field: "tally_map.device_index", Reason: fmt.Sprintf("no device with index %d", deviceIndex)}
	}

	if !tm.ProgramSource.empty() && tm.ProgramSource.TallyType == "" {
		return &ValidationError{Field: "tally_map.program_source", Reason: "non-empty source requires a tally type"}
	}
	if !tm.PreviewSource.empty() && tm.PreviewSource.TallyType == "" {
		return &ValidationError{Field: "tally_map.preview_source", Reason: "non-empty source requires a tally type"}
	}

	if !tm.ProgramSource.empty() && !tm.PreviewSource.empty() && tm.ProgramSource == tm.PreviewSource {
		return &ValidationError{Field: "tally_map", Reason: "program and preview sources must differ"}
	}

	maxTally := cfg.UMD.MaxTally
	if maxTally <= 0 {
		maxTally = 32
	}
	if !tm.ProgramSource.empty() && (tm.ProgramSource.TallyIndex < 0 || tm.ProgramSource.TallyIndex >= maxTally) {
		return &ValidationError{Field: "tally_map.program_source.tally_index", Reason: "out of UMD range"}
	}
	if !tm.PreviewSource.empty() && (tm.PreviewSource.TallyIndex < 0 || tm.PreviewSource.TallyIndex >= maxTally) {
		return &ValidationError{Field: "tally_map.preview_source.tally_index", Reason: "out of UMD range"}
	}
	return nil
}

func deviceIndexKnown(cfg *Config, idx int) bool {
	for _, dc := range cfg.Devices {
		if dc.DeviceIndex == idx {
			return true
		}
	}
	return false
}
