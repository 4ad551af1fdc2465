package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAPN          = "PICOLIMNO_APN"
	EnvAPNUser      = "PICOLIMNO_APN_USER"
	EnvAPNPassword  = "PICOLIMNO_APN_PASSWORD"
	EnvServer       = "PICOLIMNO_SERVER"
	EnvIMEI         = "PICOLIMNO_IMEI"
	EnvMQTTPassword = "PICOLIMNO_MQTT_PASSWORD"
)

// Config represents the station configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Modem     ModemConfig     `yaml:"modem"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Sampling  SamplingConfig  `yaml:"sampling"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Batch     BatchConfig     `yaml:"batch"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
	Startup   StartupConfig   `yaml:"startup"`

	// fileValues holds the values replaced by environment overrides, keyed
	// by variable name, so Save never writes them out.
	fileValues map[string]string
}

// ServerConfig describes the remote device API.
type ServerConfig struct {
	URL          string        `yaml:"url" validate:"required,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	Attempts     int           `yaml:"attempts" validate:"min=1,max=10"`
	AttemptDelay time.Duration `yaml:"attempt_delay" validate:"gte=0"`
}

// TransportConfig selects how JSON documents reach the server.
type TransportConfig struct {
	Kind string     `yaml:"kind" validate:"oneof=http mqtt"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains the MQTT uplink settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos" validate:"max=2"`
}

// ModemConfig contains the cellular modem settings.
type ModemConfig struct {
	Kind           string `yaml:"kind" validate:"oneof=at host"`
	Port           string `yaml:"port"`
	BaudRate       int    `yaml:"baud_rate" validate:"gte=0"`
	APN            string `yaml:"apn"`
	APNUser        string `yaml:"apn_user"`
	APNPassword    string `yaml:"apn_password"`
	ConnectRetries int    `yaml:"connect_retries" validate:"min=1"`
	IMEI           string `yaml:"imei"`
}

// SensorConfig selects the sensor board.
type SensorConfig struct {
	Kind     string     `yaml:"kind" validate:"oneof=serial mock"`
	Port     string     `yaml:"port"`
	BaudRate int        `yaml:"baud_rate" validate:"gte=0"`
	Mock     MockConfig `yaml:"mock"`
}

// MockConfig contains mock sensor board parameters.
type MockConfig struct {
	LevelMM     float64       `yaml:"level_mm"`     // mean distance to water (mm)
	AmplitudeMM float64       `yaml:"amplitude_mm"` // level swing (mm)
	Period      time.Duration `yaml:"period"`       // level swing period
	NoiseMM     float64       `yaml:"noise_mm"`
	Dropout     float64       `yaml:"dropout" validate:"gte=0,lte=1"` // probability of an invalid reading
	Temperature float64       `yaml:"temperature"`
	Hygrometry  float64       `yaml:"hygrometry"`
	Battery     float64       `yaml:"battery"`
}

// ScheduleConfig contains the measurement timing.
type ScheduleConfig struct {
	Tick             time.Duration `yaml:"tick" validate:"gt=0"`
	SampleInterval   time.Duration `yaml:"sample_interval" validate:"gt=0"`
	TransmitInterval time.Duration `yaml:"transmit_interval" validate:"gt=0"`
	StartHour        int           `yaml:"start_hour" validate:"min=0,max=23"`
	StopHour         int           `yaml:"stop_hour" validate:"min=0,max=23"`
	Reset            string        `yaml:"reset"` // "HH:MM", empty disables
}

// SamplingConfig contains median sampler parameters.
type SamplingConfig struct {
	MinValid    int `yaml:"min_valid" validate:"min=1"`
	MaxAttempts int `yaml:"max_attempts" validate:"gtefield=MinValid"`
}

// AlertsConfig contains both alert levels.
type AlertsConfig struct {
	Alert1 AlertConfig `yaml:"alert1"`
	Alert2 AlertConfig `yaml:"alert2"`
}

// AlertConfig contains one alert level. Zero threshold and hysteresis
// disable it until a parameter refresh provides values.
type AlertConfig struct {
	Threshold    float32 `yaml:"threshold"`
	Hysteresis   float32 `yaml:"hysteresis" validate:"gte=0"`
	InitialAbove bool    `yaml:"initial_above"`
}

// BatchConfig contains transmission batcher parameters.
type BatchConfig struct {
	Capacity int `yaml:"capacity" validate:"min=1,max=64"`
}

// WatchdogConfig contains loop watchdog parameters.
type WatchdogConfig struct {
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	Device  string        `yaml:"device"` // e.g. /dev/watchdog; empty uses a software watchdog
}

// MetricsConfig contains the metrics listener settings.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the listener
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=trace debug info warn warning error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

// StartupConfig contains startup sequence parameters.
type StartupConfig struct {
	ClockRetries int           `yaml:"clock_retries" validate:"min=1"`
	StopTimeout  time.Duration `yaml:"stop_timeout" validate:"gte=0"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:          "http://picolimno.example.org",
			Timeout:      30 * time.Second,
			Attempts:     3,
			AttemptDelay: 500 * time.Millisecond,
		},
		Transport: TransportConfig{
			Kind: "http",
			MQTT: MQTTConfig{
				ClientID: "picolimno",
				QoS:      1,
			},
		},
		Modem: ModemConfig{
			Kind:           "host",
			Port:           "/dev/ttyUSB1",
			BaudRate:       115200,
			ConnectRetries: 10,
			IMEI:           "000000000000000",
		},
		Sensor: SensorConfig{
			Kind:     "mock",
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
			Mock: MockConfig{
				LevelMM:     1500,
				AmplitudeMM: 300,
				Period:      6 * time.Hour,
				NoiseMM:     5,
				Dropout:     0.05,
				Temperature: 12.5,
				Hygrometry:  70,
				Battery:     3.9,
			},
		},
		Schedule: ScheduleConfig{
			Tick:             time.Minute,
			SampleInterval:   time.Minute,
			TransmitInterval: 15 * time.Minute,
		},
		Sampling: SamplingConfig{
			MinValid:    10,
			MaxAttempts: 175,
		},
		Alerts: AlertsConfig{
			Alert1: AlertConfig{InitialAbove: true},
			Alert2: AlertConfig{InitialAbove: true},
		},
		Batch: BatchConfig{
			Capacity: 8,
		},
		Watchdog: WatchdogConfig{
			Timeout: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Startup: StartupConfig{
			ClockRetries: 3,
			StopTimeout:  5 * time.Second,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values. Environment overrides are
// applied last.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ensureDefaults()
	cfg.applyEnv()

	return cfg, nil
}

// LoadEnvFile loads a dotenv file into the process environment. A missing
// file is not an error.
func LoadEnvFile(filename string) error {
	if err := godotenv.Load(filename); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Save saves the configuration to a YAML file. Values that came from the
// environment are written as they were before the override.
func (c *Config) Save(filename string) error {
	out := *c
	fields := out.envFields()
	for key, v := range c.fileValues {
		*fields[key] = v
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Transport.Kind == "mqtt" && c.Transport.MQTT.Broker == "" {
		return fmt.Errorf("invalid config: transport.mqtt.broker is required for mqtt")
	}
	if c.Modem.Kind == "at" && c.Modem.Port == "" {
		return fmt.Errorf("invalid config: modem.port is required for the at modem")
	}
	if c.Sensor.Kind == "serial" && c.Sensor.Port == "" {
		return fmt.Errorf("invalid config: sensor.port is required for the serial board")
	}
	if c.Schedule.TransmitInterval%c.Schedule.Tick != 0 || c.Schedule.SampleInterval%c.Schedule.Tick != 0 {
		return fmt.Errorf("invalid config: schedule intervals must be multiples of the tick %s", c.Schedule.Tick)
	}
	return nil
}

func (c *Config) envFields() map[string]*string {
	return map[string]*string{
		EnvAPN:          &c.Modem.APN,
		EnvAPNUser:      &c.Modem.APNUser,
		EnvAPNPassword:  &c.Modem.APNPassword,
		EnvServer:       &c.Server.URL,
		EnvIMEI:         &c.Modem.IMEI,
		EnvMQTTPassword: &c.Transport.MQTT.Password,
	}
}

func (c *Config) applyEnv() {
	for key, dst := range c.envFields() {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		if _, seen := c.fileValues[key]; !seen {
			if c.fileValues == nil {
				c.fileValues = make(map[string]string)
			}
			c.fileValues[key] = *dst
		}
		*dst = v
	}
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Server.URL == "" {
		c.Server.URL = def.Server.URL
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = def.Server.Timeout
	}
	if c.Server.Attempts == 0 {
		c.Server.Attempts = def.Server.Attempts
	}

	if c.Transport.Kind == "" {
		c.Transport.Kind = def.Transport.Kind
	}
	if c.Transport.MQTT.ClientID == "" {
		c.Transport.MQTT.ClientID = def.Transport.MQTT.ClientID
	}

	if c.Modem.Kind == "" {
		c.Modem.Kind = def.Modem.Kind
	}
	if c.Modem.BaudRate == 0 {
		c.Modem.BaudRate = def.Modem.BaudRate
	}
	if c.Modem.ConnectRetries == 0 {
		c.Modem.ConnectRetries = def.Modem.ConnectRetries
	}

	if c.Sensor.Kind == "" {
		c.Sensor.Kind = def.Sensor.Kind
	}
	if c.Sensor.BaudRate == 0 {
		c.Sensor.BaudRate = def.Sensor.BaudRate
	}
	if c.Sensor.Mock.Period == 0 {
		c.Sensor.Mock.Period = def.Sensor.Mock.Period
	}
	if c.Sensor.Mock.LevelMM == 0 {
		c.Sensor.Mock.LevelMM = def.Sensor.Mock.LevelMM
	}
	if c.Sensor.Mock.Battery == 0 {
		c.Sensor.Mock.Battery = def.Sensor.Mock.Battery
	}

	if c.Schedule.Tick == 0 {
		c.Schedule.Tick = def.Schedule.Tick
	}
	if c.Schedule.SampleInterval == 0 {
		c.Schedule.SampleInterval = def.Schedule.SampleInterval
	}
	if c.Schedule.TransmitInterval == 0 {
		c.Schedule.TransmitInterval = def.Schedule.TransmitInterval
	}

	if c.Sampling.MinValid == 0 {
		c.Sampling.MinValid = def.Sampling.MinValid
	}
	if c.Sampling.MaxAttempts == 0 {
		c.Sampling.MaxAttempts = def.Sampling.MaxAttempts
	}

	if c.Batch.Capacity == 0 {
		c.Batch.Capacity = def.Batch.Capacity
	}

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}

	if c.Startup.ClockRetries == 0 {
		c.Startup.ClockRetries = def.Startup.ClockRetries
	}
	if c.Startup.StopTimeout == 0 {
		c.Startup.StopTimeout = def.Startup.StopTimeout
	}
}
