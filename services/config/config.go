// Package config loads board descriptions: which codec variant sits on
// which bus, the card's DAI format and the initial control values.
package config

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"codecctl-go/drivers/pcm179x"
	"codecctl-go/errcode"
)

// EmbeddedConfigLookup allows overriding how board configs are resolved.
var EmbeddedConfigLookup = func(board string) ([]byte, bool) {
	b, ok := embeddedConfigs[board]
	return b, ok
}

type Board struct {
	Name     string           `yaml:"name"`
	Card     Card             `yaml:"card"`
	Codec    Codec            `yaml:"codec"`
	Pot      *Pot             `yaml:"potentiometer,omitempty"`
	Controls map[string][]int `yaml:"controls,omitempty"`
	Monitor  Monitor          `yaml:"monitor"`
	Log      Log              `yaml:"log"`
}

type Monitor struct {
	Interval time.Duration `yaml:"interval,omitempty"` // 0 => monitor default
}

type Card struct {
	Name      string `yaml:"name"`
	DAIFormat string `yaml:"dai_format"`
	MaxRate   uint32 `yaml:"max_rate,omitempty"` // 0 => codec ceiling
	ResetPin  string `yaml:"reset_gpio,omitempty"`
}

type Codec struct {
	Compatible   string         `yaml:"compatible"`
	Bus          BusRef         `yaml:"bus"`
	StartupDelay *time.Duration `yaml:"startup_delay,omitempty"` // nil => default, 0s => none
}

// Delay returns the codec settle time on stream open.
func (c Codec) Delay() time.Duration {
	if c.StartupDelay == nil {
		return pcm179x.DefaultStartupDelay
	}
	return *c.StartupDelay
}

type Pot struct {
	Compatible string `yaml:"compatible"`
	Bus        BusRef `yaml:"bus"`
}

// BusRef names a platform bus: an I2C bus number or an SPI port name as
// understood by the host's bus registry.
type BusRef struct {
	Type    string `yaml:"type"` // "i2c" | "spi"
	ID      string `yaml:"id"`
	Address uint16 `yaml:"address,omitempty"`  // I2C only
	SpeedHz uint32 `yaml:"speed_hz,omitempty"` // SPI only
}

type Log struct {
	Level string `yaml:"level"`
}

// Variant resolves the codec compatible string.
func (b *Board) Variant() (pcm179x.Variant, error) {
	return pcm179x.VariantFromCompatible(b.Codec.Compatible)
}

// Protocol parses the card DAI format.
func (b *Board) Protocol() (pcm179x.Protocol, error) {
	return pcm179x.ParseProtocol(b.Card.DAIFormat)
}

// LogLevel parses log.level, defaulting to info.
func (b *Board) LogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(b.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Parse decodes and validates one board description.
func Parse(raw []byte) (*Board, error) {
	var b Board
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "config", err)
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Load returns the embedded board description for name.
func Load(name string) (*Board, error) {
	raw, ok := EmbeddedConfigLookup(name)
	if !ok || len(raw) == 0 {
		return nil, errcode.New(errcode.UnknownBoard, "config", name)
	}
	return Parse(raw)
}

// LoadFile reads a board description from disk.
func LoadFile(path string) (*Board, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func (b *Board) validate() error {
	if _, err := b.Variant(); err != nil {
		return invalid("codec.compatible " + b.Codec.Compatible)
	}
	if b.Card.DAIFormat == "" {
		b.Card.DAIFormat = pcm179x.ProtocolI2S.String()
	}
	if _, err := b.Protocol(); err != nil {
		return invalid("card.dai_format " + b.Card.DAIFormat)
	}
	if err := b.Codec.Bus.validate("codec.bus"); err != nil {
		return err
	}
	if d := b.Codec.StartupDelay; d != nil && *d < 0 {
		return invalid("codec.startup_delay must not be negative")
	}
	if b.Pot != nil {
		if b.Pot.Compatible != "maxim,ds1807" {
			return invalid("potentiometer.compatible " + b.Pot.Compatible)
		}
		if b.Pot.Bus.Type != "i2c" {
			return invalid("potentiometer.bus.type must be i2c")
		}
		if err := b.Pot.Bus.validate("potentiometer.bus"); err != nil {
			return err
		}
	}
	if b.Card.Name == "" {
		b.Card.Name = b.Name
	}
	return nil
}

func (r BusRef) validate(field string) error {
	switch r.Type {
	case "i2c", "spi":
	default:
		return invalid(field + ".type " + r.Type)
	}
	if r.ID == "" {
		return invalid(field + ".id is required")
	}
	if r.Type == "i2c" && r.Address > 0x7f {
		return invalid(field + ".address must be 7-bit")
	}
	return nil
}

func invalid(msg string) error {
	return errcode.New(errcode.InvalidParams, "config", msg)
}
