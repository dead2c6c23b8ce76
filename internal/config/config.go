package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides (SOUNDBOARD_AUDIO_BACKEND, ...)
const EnvPrefix = "SOUNDBOARD"

// MaxKeys is the largest key count any supported panel exposes
const MaxKeys = 32

type Config struct {
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Control  ControlConfig  `mapstructure:"control" yaml:"control"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
	Panel    PanelConfig    `mapstructure:"panel" yaml:"panel"`
	Remote   RemoteConfig   `mapstructure:"remote" yaml:"remote"`
}

type StorageConfig struct {
	Directory   string `mapstructure:"directory" yaml:"directory"`
	Keys        int    `mapstructure:"keys" yaml:"keys"`
	FilePattern string `mapstructure:"file_pattern" yaml:"file_pattern"` // %c is replaced by the key letter
}

type ControlConfig struct {
	Socket  string        `mapstructure:"socket" yaml:"socket"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type AudioConfig struct {
	Backend             string `mapstructure:"backend" yaml:"backend"` // "pipewire", "portaudio", "auto"
	SampleRate          int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels            int    `mapstructure:"channels" yaml:"channels"`
	FramesPerBuffer     int    `mapstructure:"frames_per_buffer" yaml:"frames_per_buffer"`
	MaxRecordingSeconds int    `mapstructure:"max_recording_seconds" yaml:"max_recording_seconds"`
	CaptureSink         bool   `mapstructure:"capture_sink" yaml:"capture_sink"` // record what the default sink plays
	Device              string `mapstructure:"device" yaml:"device"`
}

type PlaybackConfig struct {
	Player      string `mapstructure:"player" yaml:"player"`
	MixerTarget string `mapstructure:"mixer_target" yaml:"mixer_target"`
	TempDir     string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

type PanelConfig struct {
	Driver      string        `mapstructure:"driver" yaml:"driver"`
	Brightness  int           `mapstructure:"brightness" yaml:"brightness"`
	Assets      string        `mapstructure:"assets" yaml:"assets"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	LogFile     string        `mapstructure:"log_file" yaml:"log_file"`
}

type RemoteConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"` // empty disables the HTTP remote
}

// MaxRecordingSamples returns the sample cap of one recording, 0 when unbounded
func (a AudioConfig) MaxRecordingSamples() int {
	if a.MaxRecordingSeconds <= 0 {
		return 0
	}
	return a.MaxRecordingSeconds * a.SampleRate * a.Channels
}

// DefaultConfigFile returns the config path used when --config is not given
func DefaultConfigFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "soundboard.yaml"
	}
	return filepath.Join(home, ".config", "soundboard.yaml")
}

// DefaultSocketPath returns $XDG_RUNTIME_DIR/soundboard.sock, or a temp dir path
func DefaultSocketPath() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "soundboard.sock")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.directory", "~/Music/soundboard-recordings")
	v.SetDefault("storage.keys", 8)
	v.SetDefault("storage.file_pattern", "recording_%c.wav")

	v.SetDefault("control.socket", DefaultSocketPath())
	v.SetDefault("control.timeout", 5*time.Second)

	v.SetDefault("audio.backend", "pipewire")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 2)
	v.SetDefault("audio.frames_per_buffer", 1024)
	v.SetDefault("audio.max_recording_seconds", 600)
	v.SetDefault("audio.capture_sink", true)
	v.SetDefault("audio.device", "")

	v.SetDefault("playback.player", "pw-play")
	v.SetDefault("playback.mixer_target", "MyMixer")
	v.SetDefault("playback.temp_dir", os.TempDir())

	v.SetDefault("panel.driver", "virtual")
	v.SetDefault("panel.brightness", 50)
	v.SetDefault("panel.assets", "assets")
	v.SetDefault("panel.read_timeout", 100*time.Millisecond)
	v.SetDefault("panel.log_file", filepath.Join(os.TempDir(), "soundboard-panel.log"))

	v.SetDefault("remote.listen", "")
}

// Load reads configFile on top of the defaults. A missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFound(err) {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Storage.Directory = expandPath(cfg.Storage.Directory)
	cfg.Playback.TempDir = expandPath(cfg.Playback.TempDir)
	cfg.Control.Socket = expandPath(cfg.Control.Socket)
	cfg.Panel.Assets = expandPath(cfg.Panel.Assets)
	cfg.Panel.LogFile = expandPath(cfg.Panel.LogFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func isConfigNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	return errors.Is(err, fs.ErrNotExist)
}

// SetValue writes a single key into the config file, creating the file if needed
func SetValue(configFile, key, value string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Use a dedicated viper instance so the file only holds explicitly set keys
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil && !isConfigNotFound(err) {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
