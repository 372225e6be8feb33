// Package config loads, validates and holds the server's runtime
// configuration (component H). Structure follows the teacher repository's
// internal/config: a package-level Keys value populated by Init, validated
// against an embedded JSON Schema before being decoded.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/opendmtp/dmtp-backend/pkg/log"
)

// Config is the decoded form of the server's JSON configuration file
// (spec.md §6, expanded with the ambient/domain stack additions).
type Config struct {
	Listen struct {
		TCP struct {
			Port uint16 `json:"port"`
		} `json:"tcp"`
		UDP struct {
			Port uint16 `json:"port"`
		} `json:"udp"`
	} `json:"listen"`

	Pool struct {
		Max uint32 `json:"max"`
	} `json:"pool"`

	Timeout struct {
		Session struct {
			MS uint32 `json:"ms"`
		} `json:"session"`
		Idle struct {
			MS uint32 `json:"ms"`
		} `json:"idle"`
		Packet struct {
			MS uint32 `json:"ms"`
		} `json:"packet"`
	} `json:"timeout"`

	Linger struct {
		Sec uint8 `json:"sec"`
	} `json:"linger"`

	Packet struct {
		Max struct {
			Len uint16 `json:"len"`
		} `json:"max"`
	} `json:"packet"`

	Template struct {
		Custom struct {
			Enabled bool `json:"enabled"`
		} `json:"custom"`
	} `json:"template"`

	Duplicate struct {
		Events struct {
			Nack bool `json:"nack"`
		} `json:"events"`
	} `json:"duplicate"`

	DB struct {
		Driver string `json:"driver"` // "sqlite3", "mysql", or "memory"
		DSN    string `json:"dsn"`
	} `json:"db"`

	Nats struct {
		Address string `json:"address"`
		Subject string `json:"subject"`
	} `json:"nats"`

	LineProtocol struct {
		Path string `json:"path"`
	} `json:"lineprotocol"`

	Archive struct {
		Avro struct {
			Dir string `json:"dir"`
		} `json:"avro"`
	} `json:"archive"`

	Metrics struct {
		Addr string `json:"addr"`
	} `json:"metrics"`

	Gops struct {
		Enabled bool `json:"enabled"`
	} `json:"gops"`

	Log struct {
		Level string `json:"level"`
		Show  struct {
			SQL bool `json:"sql"`
		} `json:"show"`
		Email struct {
			Enabled bool   `json:"enabled"`
			SMTP    string `json:"smtp"`
		} `json:"email"`
	} `json:"log"`
}

// Keys is the process-wide config snapshot, populated once by Init and
// passed explicitly from there on (spec.md §9: "the only process-wide
// state is the template cache and the config snapshot").
var Keys = Default()

// Default returns the documented defaults (spec.md §6).
func Default() Config {
	var c Config
	c.Pool.Max = 20
	c.Packet.Max.Len = 2048
	c.Template.Custom.Enabled = true
	c.DB.Driver = "memory"
	c.Log.Level = "info"
	return c
}

// Init loads envFile into the process environment (if present), then
// reads, schema-validates and decodes the configuration file at path into
// Keys. Unlike the teacher's hand-rolled internal/runtimeEnv.LoadEnv, the
// .env overlay here goes through the already-declared joho/godotenv
// dependency directly.
func Init(path, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("config: %s not found, using defaults", path)
			Keys = Default()
			return nil
		}
		return err
	}

	if err := Validate(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("config: validate: %w", err)
	}

	c := Default()
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&c); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}

	Keys = c
	return nil
}
