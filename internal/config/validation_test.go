package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvconnected/camera-engine/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Devices: map[string]config.DeviceConfig{
			"cam-1": {Id: "cam-1", DeviceIndex: 0, IndexAssigned: true},
		},
		TallyMaps: map[int]config.TallyMap{},
		UMD:       config.UMDConfig{Port: 65000, MaxTally: 32},
		CommandPort: config.CommandPortConfig{Port: 65001},
		API:         config.APIConfig{Port: 8765},
		Health:      config.HealthConfig{Port: 9090},
	}
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	cfg := baseConfig()
	cfg.UMD.Port = 0
	assert.Error(t, config.Validate(cfg))
}

func TestValidate_RejectsDuplicateDeviceIndex(t *testing.T) {
	cfg := baseConfig()
	cfg.Devices["cam-2"] = config.DeviceConfig{Id: "cam-2", DeviceIndex: 0, IndexAssigned: true}
	assert.Error(t, config.Validate(cfg))
}

func TestValidateTallyMap_RejectsUnknownDevice(t *testing.T) {
	cfg := baseConfig()
	err := config.ValidateTallyMap(cfg, 5, config.TallyMap{})
	require.Error(t, err)
}

func TestValidateTallyMap_RejectsIdenticalProgramAndPreview(t *testing.T) {
	cfg := baseConfig()
	source := config.TallySource{ScreenIndex: 1, TallyIndex: 1, TallyType: "rh_tally"}
	err := config.ValidateTallyMap(cfg, 0, config.TallyMap{ProgramSource: source, PreviewSource: source})
	assert.Error(t, err)
}

func TestValidateTallyMap_RejectsIndexOutsideUMDRange(t *testing.T) {
	cfg := baseConfig()
	err := config.ValidateTallyMap(cfg, 0, config.TallyMap{
		ProgramSource: config.TallySource{TallyIndex: 99, TallyType: "rh_tally"},
	})
	assert.Error(t, err)
}

func TestValidateTallyMap_AllowsSingleSource(t *testing.T) {
	cfg := baseConfig()
	err := config.ValidateTallyMap(cfg, 0, config.TallyMap{
		ProgramSource: config.TallySource{TallyIndex: 1, TallyType: "rh_tally"},
	})
	assert.NoError(t, err)
}
