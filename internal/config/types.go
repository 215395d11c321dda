package config

// DeviceConfig is the persisted record for one camera (spec.md §3). Only
// the fields through AlwaysConnect are user-editable; Online, Active, and
// StoredInConfig are derived/runtime and never round-trip from the
// on-disk document's user-facing edit path.
type DeviceConfig struct {
	Id             string `mapstructure:"id" yaml:"id"`
	DisplayName    string `mapstructure:"display_name" yaml:"display_name"`
	Host           string `mapstructure:"host" yaml:"host"`
	Port           int    `mapstructure:"port" yaml:"port"`
	AuthUser       string `mapstructure:"auth_user" yaml:"auth_user"`
	AuthPass       string `mapstructure:"auth_pass" yaml:"auth_pass"`
	DeviceIndex    int    `mapstructure:"device_index" yaml:"device_index"`
	IndexAssigned  bool   `mapstructure:"index_assigned" yaml:"index_assigned"`
	AlwaysConnect  bool   `mapstructure:"always_connect" yaml:"always_connect"`
	Online         bool   `mapstructure:"-" yaml:"-"`
	Active         bool   `mapstructure:"-" yaml:"-"`
	StoredInConfig bool   `mapstructure:"stored_in_config" yaml:"stored_in_config"`
}

// TallySource names one (screen, tallyIndex, tallyType) triple a TallyMap
// can bind to (spec.md §3, §4.H).
type TallySource struct {
	ScreenIndex int    `mapstructure:"screen_index" yaml:"screen_index"`
	TallyIndex  int    `mapstructure:"tally_index" yaml:"tally_index"`
	TallyType   string `mapstructure:"tally_type" yaml:"tally_type"`
}

func (s TallySource) empty() bool {
	return s == TallySource{}
}

// TallyMap binds a device's Program/Preview tally state to UMD sources,
// keyed by DeviceIndex in the owning Config (spec.md §3).
type TallyMap struct {
	DeviceIndex   int         `mapstructure:"device_index" yaml:"device_index"`
	ProgramSource TallySource `mapstructure:"program_source" yaml:"program_source"`
	PreviewSource TallySource `mapstructure:"preview_source" yaml:"preview_source"`
}

// UMDConfig is the UDP bind address for the UMD listener (spec.md §4.G).
type UMDConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	MaxTally  int    `mapstructure:"max_tally" yaml:"max_tally"`
}

// CommandPortConfig is the TCP bind address for the command-port server
// (spec.md §4.I).
type CommandPortConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// MIDIConfig records the selected MIDI surface port. The engine treats it
// as an opaque passthrough value; actual MIDI I/O is an external
// collaborator (spec.md §1 Non-goals).
type MIDIConfig struct {
	PortName string `mapstructure:"port_name" yaml:"port_name"`
}

// APIConfig is the control API's WebSocket bind address and auth settings
// (SPEC_FULL.md §6 Control API).
type APIConfig struct {
	Host          string `mapstructure:"host" yaml:"host"`
	Port          int    `mapstructure:"port" yaml:"port"`
	JWTSecret     string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
}

// DiscoveryConfig configures the mDNS browser (spec.md §4.A).
type DiscoveryConfig struct {
	ServiceType string `mapstructure:"service_type" yaml:"service_type"`
	Domain      string `mapstructure:"domain" yaml:"domain"`
}

// LoggingConfig mirrors internal/logging.LoggingConfig's shape so the
// config document can drive the global logging factory (SPEC_FULL.md
// Ambient Stack: Logging).
type LoggingConfig struct {
	Level          string `mapstructure:"level" yaml:"level"`
	Format         string `mapstructure:"format" yaml:"format"`
	FileEnabled    bool   `mapstructure:"file_enabled" yaml:"file_enabled"`
	FilePath       string `mapstructure:"file_path" yaml:"file_path"`
	MaxFileSize    int    `mapstructure:"max_file_size" yaml:"max_file_size"`
	BackupCount    int    `mapstructure:"backup_count" yaml:"backup_count"`
	ConsoleEnabled bool   `mapstructure:"console_enabled" yaml:"console_enabled"`
}

// HealthConfig binds the health/metrics HTTP server (SPEC_FULL.md §2
// component K).
type HealthConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Config is the single document persisted to disk: every known device,
// every tally map, and the engine's network bindings (spec.md §6 Config
// persistence).
type Config struct {
	Devices      map[string]DeviceConfig `mapstructure:"devices" yaml:"devices"`
	TallyMaps    map[int]TallyMap        `mapstructure:"tally_maps" yaml:"tally_maps"`
	UMD          UMDConfig               `mapstructure:"umd" yaml:"umd"`
	CommandPort  CommandPortConfig       `mapstructure:"command_port" yaml:"command_port"`
	MIDI         MIDIConfig              `mapstructure:"midi" yaml:"midi"`
	API          APIConfig               `mapstructure:"api" yaml:"api"`
	Discovery    DiscoveryConfig         `mapstructure:"discovery" yaml:"discovery"`
	Logging      LoggingConfig           `mapstructure:"logging" yaml:"logging"`
	Health       HealthConfig            `mapstructure:"health" yaml:"health"`
}
