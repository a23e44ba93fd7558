// Package config loads the daemon settings. Sources, lowest precedence first:
// built-in defaults, the TOML file, CONTACT_ environment variables, flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/contact-sensor/internal/apperr"
)

const (
	// EnvPrefix prefixes every environment override, e.g. CONTACT_MQTT_BROKER.
	EnvPrefix = "CONTACT"

	// DefaultPath is where the config file is looked up when --config is not given.
	DefaultPath = "/etc/contact-sensor.toml"
)

// GPIO selects the chip and line offsets.
type GPIO struct {
	Chip      string `mapstructure:"chip"`
	Buttons   []int  `mapstructure:"buttons"`
	ActiveLow bool   `mapstructure:"active_low"`
	LEDs      []int  `mapstructure:"leds"`
}

// Flash holds the SPI flash lines. Negative offsets are absent.
type Flash struct {
	CS   int `mapstructure:"cs"`
	SCK  int `mapstructure:"sck"`
	MOSI int `mapstructure:"mosi"`
	WP   int `mapstructure:"wp"`
	Hold int `mapstructure:"hold"`
}

// ADC selects the IIO device used for battery sampling.
type ADC struct {
	Dir        string `mapstructure:"dir"`
	Channel    int    `mapstructure:"channel"`
	NativeBits uint8  `mapstructure:"native_bits"`
}

// MQTT configures the broker link.
type MQTT struct {
	Broker     string `mapstructure:"broker"`
	ClientID   string `mapstructure:"client_id"`
	BaseTopic  string `mapstructure:"base_topic"`
	Device     string `mapstructure:"device"`
	BufferSize int    `mapstructure:"buffer_size"`
}

// Network holds the endpoint addressing and polling settings.
type Network struct {
	Endpoint     uint8         `mapstructure:"endpoint"`
	DestAddr     uint16        `mapstructure:"dest_addr"`
	DestEndpoint uint8         `mapstructure:"dest_endpoint"`
	LongPoll     time.Duration `mapstructure:"long_poll"`
}

// Battery holds the sampling schedule.
type Battery struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Period       time.Duration `mapstructure:"period"`
}

// Config is the complete daemon configuration.
type Config struct {
	LogLevel     string        `mapstructure:"log_level"`
	LogConsole   bool          `mapstructure:"log_console"`
	HTTPAddr     string        `mapstructure:"http_addr"`
	GPIO         GPIO          `mapstructure:"gpio"`
	Flash        Flash         `mapstructure:"flash"`
	ADC          ADC           `mapstructure:"adc"`
	MQTT         MQTT          `mapstructure:"mqtt"`
	Network      Network       `mapstructure:"network"`
	Battery      Battery       `mapstructure:"battery"`
	Blink        time.Duration `mapstructure:"blink_interval"`
	ResetPress   time.Duration `mapstructure:"factory_reset_press"`
	ConfigFile   string        `mapstructure:"-"`
	PrintVersion bool          `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_console", false)
	v.SetDefault("http_addr", ":80")

	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.buttons", []int{17, 27})
	v.SetDefault("gpio.active_low", true)
	v.SetDefault("gpio.leds", []int{22, 23})

	v.SetDefault("flash.cs", -1)
	v.SetDefault("flash.sck", -1)
	v.SetDefault("flash.mosi", -1)
	v.SetDefault("flash.wp", -1)
	v.SetDefault("flash.hold", -1)

	v.SetDefault("adc.dir", "/sys/bus/iio/devices/iio:device0")
	v.SetDefault("adc.channel", 0)
	v.SetDefault("adc.native_bits", 12)

	v.SetDefault("mqtt.broker", "tcp://192.168.1.200:1883")
	v.SetDefault("mqtt.client_id", "contact-sensor")
	v.SetDefault("mqtt.base_topic", "zigbee2mqtt")
	v.SetDefault("mqtt.device", "contact-sensor")
	v.SetDefault("mqtt.buffer_size", 100)

	v.SetDefault("network.endpoint", 1)
	v.SetDefault("network.dest_addr", 0x0000)
	v.SetDefault("network.dest_endpoint", 1)
	v.SetDefault("network.long_poll", time.Hour)

	v.SetDefault("battery.initial_delay", 10*time.Second)
	v.SetDefault("battery.period", 8*time.Hour)

	v.SetDefault("blink_interval", 100*time.Millisecond)
	v.SetDefault("factory_reset_press", 5*time.Second)
}

// flag name -> config key
var flagKeys = map[string]string{
	"log-level": "log_level",
	"console":   "log_console",
	"http":      "http_addr",
	"chip":      "gpio.chip",
	"broker":    "mqtt.broker",
	"device":    "mqtt.device",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("contact-sensor", pflag.ContinueOnError)
	fs.String("config", "", "Config file (default "+DefaultPath+" if present)")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Bool("console", false, "Human-readable console logging")
	fs.String("http", ":80", "HTTP status address (empty to disable)")
	fs.String("chip", "gpiochip0", "GPIO chip name")
	fs.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	fs.String("device", "contact-sensor", "Device name used in MQTT topics")
	fs.Bool("version", false, "Print version and exit")
	return fs
}

// Load reads the configuration from fs, the environment and args (without the
// program name). The returned error carries apperr.ConfigFailed.
func Load(fs afero.Fs, args []string) (*Config, error) {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, apperr.Wrap(apperr.ConfigFailed, "parse flags", err)
	}

	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, apperr.Wrap(apperr.ConfigFailed, "bind flag "+name, err)
		}
	}
	if err := v.BindEnv("config"); err != nil {
		return nil, apperr.Wrap(apperr.ConfigFailed, "bind config env", err)
	}

	path, _ := flags.GetString("config")
	if path == "" {
		path = v.GetString("config")
	}
	if err := readFile(v, path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperr.Wrap(apperr.ConfigFailed, "unmarshal config", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()
	cfg.PrintVersion, _ = flags.GetBool("version")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile loads an explicit path, or the default file when it exists.
func readFile(v *viper.Viper, path string) error {
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return apperr.Wrap(apperr.ConfigFailed, "read config "+path, err)
		}
		return nil
	}

	v.SetConfigName("contact-sensor")
	v.AddConfigPath("/etc")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return apperr.Wrap(apperr.ConfigFailed, "read config "+DefaultPath, err)
	}
	return nil
}

// Validate rejects settings the device cannot start with.
func (c *Config) Validate() error {
	var problems []string
	if len(c.GPIO.Buttons) == 0 {
		problems = append(problems, "gpio.buttons is empty")
	}
	if len(c.GPIO.Buttons) > 32 {
		problems = append(problems, fmt.Sprintf("gpio.buttons has %d lines, max 32", len(c.GPIO.Buttons)))
	}
	if len(c.GPIO.LEDs) < 2 {
		problems = append(problems, "gpio.leds needs the network and user LED")
	}
	if c.Battery.InitialDelay <= 0 {
		problems = append(problems, "battery.initial_delay must be positive")
	}
	if c.Battery.Period <= 0 {
		problems = append(problems, "battery.period must be positive")
	}
	if c.Blink <= 0 {
		problems = append(problems, "blink_interval must be positive")
	}
	if c.ResetPress <= 0 {
		problems = append(problems, "factory_reset_press must be positive")
	}
	if c.Network.LongPoll <= 0 {
		problems = append(problems, "network.long_poll must be positive")
	}
	if c.Network.Endpoint == 0 || c.Network.Endpoint > 240 {
		problems = append(problems, fmt.Sprintf("network.endpoint %d out of range 1-240", c.Network.Endpoint))
	}
	if c.Network.DestEndpoint == 0 {
		problems = append(problems, "network.dest_endpoint must not be 0")
	}
	if c.MQTT.Device == "" {
		problems = append(problems, "mqtt.device is empty")
	}
	if c.ADC.NativeBits == 0 || c.ADC.NativeBits > 16 {
		problems = append(problems, fmt.Sprintf("adc.native_bits %d out of range 1-16", c.ADC.NativeBits))
	}
	if len(problems) > 0 {
		return apperr.Wrap(apperr.ConfigFailed, "validate config", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet().FlagUsages()
}
