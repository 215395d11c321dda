package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jvconnected/camera-engine/internal/logging"
)

// EditHistory records, per device field, that a user-driven upsert
// changed it — driving the UI's "edited" indicator (spec.md §4.B).
type EditHistory map[string][]string

// ConfigManager is the config store: the sole writer of the on-disk
// document, serializing concurrent upserts and rewriting atomically only
// when the serialized form changes (spec.md §4.B).
type ConfigManager struct {
	mu         sync.RWMutex
	path       string
	cfg        *Config
	logger     *logging.Logger
	editedFields map[string]EditHistory

	callbacks []func(*Config)
}

// NewConfigManager loads configPath (or starts from defaults if absent)
// and returns a ready ConfigManager.
func NewConfigManager(configPath string, logger *logging.Logger) (*ConfigManager, error) {
	loader := NewLoader(logger)
	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{
		path:         configPath,
		cfg:          cfg,
		logger:       logger,
		editedFields: make(map[string]EditHistory),
	}, nil
}

// AddUpdateCallback registers fn to run, from its own goroutine with panic
// recovery, whenever the document changes (spec.md §4.B fires
// "properties-updated").
func (cm *ConfigManager) AddUpdateCallback(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

func (cm *ConfigManager) notify(snapshot *Config) {
	cm.mu.RLock()
	callbacks := append([]func(*Config){}, cm.callbacks...)
	cm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, cb := range callbacks {
		wg.Add(1)
		go func(fn func(*Config)) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					cm.logger.WithField("panic", r).Error("panic in config update callback")
				}
			}()
			fn(snapshot)
		}(cb)
	}
	wg.Wait()
}

// List returns every known device, keyed by DeviceId.
func (cm *ConfigManager) List() map[string]DeviceConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make(map[string]DeviceConfig, len(cm.cfg.Devices))
	for id, dc := range cm.cfg.Devices {
		out[id] = dc
	}
	return out
}

// Get returns a single device's config.
func (cm *ConfigManager) Get(id string) (DeviceConfig, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	dc, ok := cm.cfg.Devices[id]
	return dc, ok
}

// Upsert applies patch fields onto the stored (or ephemeral) DeviceConfig
// for id, diffs against the baseline to record per-field edit history,
// fires registered callbacks, and persists (spec.md §4.B).
func (cm *ConfigManager) Upsert(id string, patch DeviceConfig) (DeviceConfig, []string, error) {
	cm.mu.Lock()
	baseline, existed := cm.cfg.Devices[id]
	if !existed {
		baseline = DeviceConfig{Id: id}
	}

	merged := mergeDeviceConfig(baseline, patch)
	changed := diffFields(baseline, merged)

	if len(changed) > 0 {
		hist := cm.editedFields[id]
		if hist == nil {
			hist = make(EditHistory)
		}
		for _, f := range changed {
			hist[f] = append(hist[f], f)
		}
		cm.editedFields[id] = hist
	}

	cm.cfg.Devices[id] = merged
	snapshot := cm.cloneLocked()
	cm.mu.Unlock()

	if err := Validate(snapshot); err != nil {
		cm.mu.Lock()
		cm.cfg.Devices[id] = baseline
		cm.mu.Unlock()
		return DeviceConfig{}, nil, err
	}

	if err := cm.persist(); err != nil {
		return DeviceConfig{}, nil, err
	}
	cm.notify(snapshot)
	return merged, changed, nil
}

// Remove deletes a device record entirely (spec.md §3: destroyed only by
// explicit removal).
func (cm *ConfigManager) Remove(id string) error {
	cm.mu.Lock()
	if _, ok := cm.cfg.Devices[id]; !ok {
		cm.mu.Unlock()
		return nil
	}
	delete(cm.cfg.Devices, id)
	delete(cm.editedFields, id)
	snapshot := cm.cloneLocked()
	cm.mu.Unlock()

	if err := cm.persist(); err != nil {
		return err
	}
	cm.notify(snapshot)
	return nil
}

// MarkOnline sets the derived Online flag without touching edit history
// or triggering a persisted rewrite (online/active are runtime-derived,
// spec.md §3).
func (cm *ConfigManager) MarkOnline(id string, online bool) {
	cm.mu.Lock()
	dc, ok := cm.cfg.Devices[id]
	if !ok {
		cm.mu.Unlock()
		return
	}
	dc.Online = online
	cm.cfg.Devices[id] = dc
	snapshot := cm.cloneLocked()
	cm.mu.Unlock()
	cm.notify(snapshot)
}

// MarkActive sets the derived Active flag (spec.md §3).
func (cm *ConfigManager) MarkActive(id string, active bool) {
	cm.mu.Lock()
	dc, ok := cm.cfg.Devices[id]
	if !ok {
		cm.mu.Unlock()
		return
	}
	dc.Active = active
	cm.cfg.Devices[id] = dc
	snapshot := cm.cloneLocked()
	cm.mu.Unlock()
	cm.notify(snapshot)
}

// AssignIndex sets a device's DeviceIndex directly, bypassing the edit-
// history diff used by user-facing Upsert calls. The engine supervisor is
// the only caller: index assignment and reassignment are its
// responsibility, not a user edit (spec.md §4.F).
func (cm *ConfigManager) AssignIndex(id string, index int) error {
	cm.mu.Lock()
	dc, ok := cm.cfg.Devices[id]
	if !ok {
		cm.mu.Unlock()
		return fmt.Errorf("config: unknown device %q", id)
	}
	dc.DeviceIndex = index
	dc.IndexAssigned = true
	cm.cfg.Devices[id] = dc
	snapshot := cm.cloneLocked()
	cm.mu.Unlock()

	if err := cm.persist(); err != nil {
		return err
	}
	cm.notify(snapshot)
	return nil
}

// UpsertTallyMap validates and stores a tally map, keyed by DeviceIndex.
func (cm *ConfigManager) UpsertTallyMap(deviceIndex int, tm TallyMap) error {
	cm.mu.Lock()
	if err := ValidateTallyMap(cm.cfg, deviceIndex, tm); err != nil {
		cm.mu.Unlock()
		return err
	}
	tm.DeviceIndex = deviceIndex
	cm.cfg.TallyMaps[deviceIndex] = tm
	snapshot := cm.cloneLocked()
	cm.mu.Unlock()

	if err := cm.persist(); err != nil {
		return err
	}
	cm.notify(snapshot)
	return nil
}

// TallyMaps returns every configured tally map.
func (cm *ConfigManager) TallyMaps() map[int]TallyMap {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make(map[int]TallyMap, len(cm.cfg.TallyMaps))
	for k, v := range cm.cfg.TallyMaps {
		out[k] = v
	}
	return out
}

// Snapshot returns a deep-enough copy of the whole document for read-only
// consumers (e.g. the control API's get_config method).
func (cm *ConfigManager) Snapshot() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.cloneLocked()
}

func (cm *ConfigManager) cloneLocked() *Config {
	devices := make(map[string]DeviceConfig, len(cm.cfg.Devices))
	for k, v := range cm.cfg.Devices {
		devices[k] = v
	}
	tallyMaps := make(map[int]TallyMap, len(cm.cfg.TallyMaps))
	for k, v := range cm.cfg.TallyMaps {
		tallyMaps[k] = v
	}
	clone := *cm.cfg
	clone.Devices = devices
	clone.TallyMaps = tallyMaps
	return &clone
}

// persist atomically rewrites the document, suppressing the write if the
// serialized form is unchanged from what is already on disk (spec.md
// §4.B: "Writes that do not alter the serialized form are suppressed.").
func (cm *ConfigManager) persist() error {
	cm.mu.RLock()
	data, err := yaml.Marshal(cm.cfg)
	path := cm.path
	cm.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	existing, err := os.ReadFile(path)
	if err == nil && reflect.DeepEqual(existing, data) {
		return nil
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: renaming temp file: %w", err)
	}
	return nil
}

func mergeDeviceConfig(base, patch DeviceConfig) DeviceConfig {
	merged := base
	merged.Id = base.Id
	if patch.DisplayName != "" {
		merged.DisplayName = patch.DisplayName
	}
	if patch.Host != "" {
		merged.Host = patch.Host
	}
	if patch.Port != 0 {
		merged.Port = patch.Port
	}
	if patch.AuthUser != "" {
		merged.AuthUser = patch.AuthUser
	}
	if patch.AuthPass != "" {
		merged.AuthPass = patch.AuthPass
	}
	merged.AlwaysConnect = patch.AlwaysConnect
	if patch.StoredInConfig {
		merged.StoredInConfig = true
	}
	return merged
}

func diffFields(base, merged DeviceConfig) []string {
	var changed []string
	if base.DisplayName != merged.DisplayName {
		changed = append(changed, "display_name")
	}
	if base.Host != merged.Host {
		changed = append(changed, "host")
	}
	if base.Port != merged.Port {
		changed = append(changed, "port")
	}
	if base.AuthUser != merged.AuthUser {
		changed = append(changed, "auth_user")
	}
	if base.AuthPass != merged.AuthPass {
		changed = append(changed, "auth_pass")
	}
	if base.DeviceIndex != merged.DeviceIndex {
		changed = append(changed, "device_index")
	}
	if base.AlwaysConnect != merged.AlwaysConnect {
		changed = append(changed, "always_connect")
	}
	return changed
}
