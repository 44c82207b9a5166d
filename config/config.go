// Package config loads sensor, transport and sink settings from a JSON or
// YAML file, with environment overrides for deployment-specific values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/uskin/canbus"
	"github.com/banshee-data/uskin/uskin"
)

// DefaultConfigFile is the checked-in defaults file for the standard patch.
const DefaultConfigFile = "uskin.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration. Pointer fields are optional; the Get*
// methods supply defaults for anything the file leaves out, so partial
// files are safe.
type Config struct {
	// Grid
	Rows        *int `json:"rows,omitempty" yaml:"rows,omitempty"`
	Columns     *int `json:"columns,omitempty" yaml:"columns,omitempty"`
	DeviceClass *int `json:"device_class,omitempty" yaml:"device_class,omitempty"`

	// DeviceID accepts any Go integer literal, e.g. "0x201" or "513".
	DeviceID *string `json:"device_id,omitempty" yaml:"device_id,omitempty"`

	// Normalization ceilings in raw units
	MaxX *int `json:"max_x,omitempty" yaml:"max_x,omitempty"`
	MaxY *int `json:"max_y,omitempty" yaml:"max_y,omitempty"`
	MaxZ *int `json:"max_z,omitempty" yaml:"max_z,omitempty"`

	CalibrationSamples *int `json:"calibration_samples,omitempty" yaml:"calibration_samples,omitempty"`

	Transport canbus.Options `json:"transport" yaml:"transport"`

	SQLitePath *string       `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	MQTT       *MQTTConfig   `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	Influx     *InfluxConfig `json:"influx,omitempty" yaml:"influx,omitempty"`
}

// MQTTConfig configures frame publishing to an MQTT broker.
type MQTTConfig struct {
	Broker   string `json:"broker" yaml:"broker"`
	ClientID string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Topic    string `json:"topic,omitempty" yaml:"topic,omitempty"`
	QoS      *int   `json:"qos,omitempty" yaml:"qos,omitempty"`
}

// InfluxConfig configures frame export to InfluxDB.
type InfluxConfig struct {
	URL         string `json:"url" yaml:"url"`
	Token       string `json:"token,omitempty" yaml:"token,omitempty"`
	Org         string `json:"org" yaml:"org"`
	Bucket      string `json:"bucket" yaml:"bucket"`
	Measurement string `json:"measurement,omitempty" yaml:"measurement,omitempty"`
}

func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }

// Load reads a .json, .yaml or .yml file and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads .env files into the process environment without replacing
// variables that are already set. With no arguments it reads ./.env if
// present.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Environment variables consulted by ApplyEnv.
const (
	EnvTransport   = "USKIN_TRANSPORT"
	EnvInterface   = "USKIN_INTERFACE"
	EnvSerialPath  = "USKIN_SERIAL_PATH"
	EnvDeviceID    = "USKIN_DEVICE_ID"
	EnvSQLitePath  = "USKIN_SQLITE_PATH"
	EnvMQTTBroker  = "USKIN_MQTT_BROKER"
	EnvInfluxURL   = "USKIN_INFLUX_URL"
	EnvInfluxToken = "USKIN_INFLUX_TOKEN"
)

// ApplyEnv overlays USKIN_* environment variables onto c and revalidates.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvTransport); ok {
		c.Transport.Kind = v
	}
	if v, ok := os.LookupEnv(EnvInterface); ok {
		c.Transport.Interface = v
	}
	if v, ok := os.LookupEnv(EnvSerialPath); ok {
		c.Transport.SerialPath = v
	}
	if v, ok := os.LookupEnv(EnvDeviceID); ok {
		c.DeviceID = ptrString(v)
	}
	if v, ok := os.LookupEnv(EnvSQLitePath); ok {
		c.SQLitePath = ptrString(v)
	}
	if v, ok := os.LookupEnv(EnvMQTTBroker); ok {
		if c.MQTT == nil {
			c.MQTT = &MQTTConfig{}
		}
		c.MQTT.Broker = v
	}
	_, hasURL := os.LookupEnv(EnvInfluxURL)
	_, hasToken := os.LookupEnv(EnvInfluxToken)
	if (hasURL || hasToken) && c.Influx == nil {
		c.Influx = &InfluxConfig{}
	}
	if v, ok := os.LookupEnv(EnvInfluxURL); ok {
		c.Influx.URL = v
	}
	if v, ok := os.LookupEnv(EnvInfluxToken); ok {
		c.Influx.Token = v
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration after environment overrides: %w", err)
	}
	return nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	if c.Rows != nil && (*c.Rows < 1 || *c.Rows > 10) {
		return fmt.Errorf("rows must be between 1 and 10, got %d", *c.Rows)
	}
	if c.Columns != nil && (*c.Columns < 1 || *c.Columns > 10) {
		return fmt.Errorf("columns must be between 1 and 10, got %d", *c.Columns)
	}
	if c.DeviceClass != nil && (*c.DeviceClass < 0 || *c.DeviceClass > 9) {
		return fmt.Errorf("device_class must be a decimal digit, got %d", *c.DeviceClass)
	}
	if _, err := c.GetDeviceID(); err != nil {
		return err
	}
	for name, v := range map[string]*int{"max_x": c.MaxX, "max_y": c.MaxY, "max_z": c.MaxZ} {
		if v != nil && (*v <= 0 || *v > 0xFFFF) {
			return fmt.Errorf("%s must be in (0, 65535], got %d", name, *v)
		}
	}
	if c.CalibrationSamples != nil && *c.CalibrationSamples < 1 {
		return fmt.Errorf("calibration_samples must be at least 1, got %d", *c.CalibrationSamples)
	}
	if _, _, err := c.Transport.Dialer(); err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if c.MQTT != nil {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required when mqtt is configured")
		}
		if q := c.MQTT.GetQoS(); q > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", q)
		}
	}
	if c.Influx != nil && c.Influx.URL == "" {
		return errors.New("influx.url is required when influx is configured")
	}
	return nil
}

// GetRows returns the rows value or the default.
func (c *Config) GetRows() int {
	if c.Rows == nil {
		return uskin.DefaultGrid.Rows
	}
	return *c.Rows
}

// GetColumns returns the columns value or the default.
func (c *Config) GetColumns() int {
	if c.Columns == nil {
		return uskin.DefaultGrid.Columns
	}
	return *c.Columns
}

// GetDeviceClass returns the device_class value or the default.
func (c *Config) GetDeviceClass() int {
	if c.DeviceClass == nil {
		return uskin.DefaultGrid.DeviceClass
	}
	return *c.DeviceClass
}

// GetDeviceID parses device_id, defaulting to the standard controller
// address.
func (c *Config) GetDeviceID() (uint32, error) {
	if c.DeviceID == nil || strings.TrimSpace(*c.DeviceID) == "" {
		return canbus.DefaultDeviceID, nil
	}
	id, err := strconv.ParseUint(strings.TrimSpace(*c.DeviceID), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid device_id %q: %w", *c.DeviceID, err)
	}
	if uint32(id) > canbus.StandardIDMask {
		return 0, fmt.Errorf("device_id %q does not fit in 11 bits", *c.DeviceID)
	}
	return uint32(id), nil
}

// GetMaxima returns the per-channel ceilings, falling back to the defaults
// channel by channel.
func (c *Config) GetMaxima() uskin.Vector {
	m := uskin.DefaultMaxima
	if c.MaxX != nil {
		m.X = int32(*c.MaxX)
	}
	if c.MaxY != nil {
		m.Y = int32(*c.MaxY)
	}
	if c.MaxZ != nil {
		m.Z = int32(*c.MaxZ)
	}
	return m
}

// GetCalibrationSamples returns the calibration_samples value or the default.
func (c *Config) GetCalibrationSamples() int {
	if c.CalibrationSamples == nil {
		return uskin.DefaultCalibrationSamples
	}
	return *c.CalibrationSamples
}

// GetSQLitePath returns the sqlite_path value or "" when history is off.
func (c *Config) GetSQLitePath() string {
	if c.SQLitePath == nil {
		return ""
	}
	return *c.SQLitePath
}

// GetQoS returns the qos value or the default of 0.
func (m *MQTTConfig) GetQoS() byte {
	if m.QoS == nil || *m.QoS < 0 {
		return 0
	}
	return byte(*m.QoS)
}

// GetTopic returns the topic or "uskin/frames".
func (m *MQTTConfig) GetTopic() string {
	if m.Topic == "" {
		return "uskin/frames"
	}
	return m.Topic
}

// GetClientID returns the client id or "uskin".
func (m *MQTTConfig) GetClientID() string {
	if m.ClientID == "" {
		return "uskin"
	}
	return m.ClientID
}

// GetMeasurement returns the measurement name or "uskin".
func (i *InfluxConfig) GetMeasurement() string {
	if i.Measurement == "" {
		return "uskin"
	}
	return i.Measurement
}

// SensorConfig converts the file settings into a sensor configuration.
func (c *Config) SensorConfig() (uskin.Config, error) {
	id, err := c.GetDeviceID()
	if err != nil {
		return uskin.Config{}, err
	}
	sc := uskin.Config{
		Grid: uskin.Grid{
			Rows:        c.GetRows(),
			Columns:     c.GetColumns(),
			DeviceClass: c.GetDeviceClass(),
		},
		DeviceID:           id,
		Maxima:             c.GetMaxima(),
		CalibrationSamples: c.GetCalibrationSamples(),
	}
	return sc, sc.Validate()
}

// TransportOptions returns the transport settings.
func (c *Config) TransportOptions() canbus.Options {
	return c.Transport
}
