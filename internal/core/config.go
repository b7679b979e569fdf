package core

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of
// revenant's components.
type Config struct {
	// Hostname or IP address of the target server.
	Hostname string `mapstructure:"hostname"`
	// Username presented during the logon exchange.
	Username string `mapstructure:"username"`

	Logging struct {
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
		// Whether to annotate logs with the caller's file/line.
		IncludeCaller bool `mapstructure:"include_caller"`
	} `mapstructure:"logging"`

	AuthServer struct {
		// Port on which the logon server accepts connections.
		Port int `mapstructure:"port"`
		// Hex-encoded proof material injected into the logon exchange. The
		// cryptographic handshake itself is owned by an external prover.
		ProofHex string `mapstructure:"proof_hex"`
		// Hex-encoded session key matching proof_hex.
		SessionKeyHex string `mapstructure:"session_key_hex"`
	} `mapstructure:"auth_server"`

	WorldServer struct {
		// Port on which the world server accepts connections. Used as a
		// fallback when the realm list does not supply an address.
		Port int `mapstructure:"port"`
		// Map the agent spawns into; threaded through every physics step.
		MapID uint32 `mapstructure:"map_id"`
	} `mapstructure:"world_server"`

	Agent struct {
		// Simulation tick rate in Hz.
		TickRate int `mapstructure:"tick_rate"`
		// Minimum interval between movement heartbeats while moving, in ms.
		HeartbeatIntervalMs int `mapstructure:"heartbeat_interval_ms"`
		// Positional displacement between ticks treated as an external teleport.
		TeleportThreshold float64 `mapstructure:"teleport_threshold"`
		// Displacement below which a tick counts as stationary.
		StaleEpsilon float64 `mapstructure:"stale_epsilon"`
		// Consecutive stationary ticks before stuck-input recovery fires.
		StaleTickLimit int `mapstructure:"stale_tick_limit"`
		// Window after a reset during which the stuck detector is disabled, in ms.
		SuppressionWindowMs int `mapstructure:"suppression_window_ms"`
		// Distance at which the agent is considered to have reached a waypoint.
		ArrivalRadius float64 `mapstructure:"arrival_radius"`
	} `mapstructure:"agent"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the agent.
		Enabled bool `mapstructure:"enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Log decoded packets to the debug log.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
		// host:port of a packet analyzer to which traffic will be exported.
		PacketAnalyzerAddress string `mapstructure:"packet_analyzer_address"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "REVENANT"

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) *Config {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if errors.Is(err, viper.ConfigFileNotFoundError{}) {
			fmt.Printf("error reading config file: no config file in path %s", configPath)
		} else {
			fmt.Printf("error reading config file: %v", err)
		}
		os.Exit(1)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, auth_server.port can be set using: <envVarPrefix>_AUTH_SERVER_PORT
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			fmt.Printf("error binding %s to %s", k, envVarPrefix+"_"+envVar)
			os.Exit(1)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		fmt.Printf("error unmarshaling config object: %v", err)
		os.Exit(1)
	}
	return config
}

// AuthAddress returns the fully qualified address of the logon server.
func (c *Config) AuthAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.AuthServer.Port)
}

// WorldAddress returns the fallback address of the world server.
func (c *Config) WorldAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.WorldServer.Port)
}
