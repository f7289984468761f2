// Package config loads the stack configuration from YAML and translates it
// into the typed forms the layers want
package config

import (
	"net"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"staticnet/pkg/ethernet"
	"staticnet/pkg/ipstack"
)

// File mirrors the YAML document
type File struct {
	Interface string `mapstructure:"interface"`
	MAC       string `mapstructure:"mac"`
	Address   string `mapstructure:"address"`
	Broadcast string `mapstructure:"broadcast"`
	Gateway   string `mapstructure:"gateway"`
	LogLevel  string `mapstructure:"log_level"`

	SSHUser     string `mapstructure:"ssh_user"`
	SSHPassword string `mapstructure:"ssh_password"`
}

// Config is the validated, typed configuration
type Config struct {
	Interface string
	MAC       ethernet.MACAddr
	IP        ipstack.Config
	LogLevel  string

	SSHUser     string
	SSHPassword string
}

// Load reads and validates a config file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if f.Interface == "" {
		return nil, errors.New("config: interface is required")
	}

	hwAddr, err := net.ParseMAC(f.MAC)
	if err != nil {
		return nil, errors.Wrapf(err, "config: bad mac %q", f.MAC)
	}
	if len(hwAddr) != 6 {
		return nil, errors.Errorf("config: mac %q is not 48-bit", f.MAC)
	}

	c := &Config{
		Interface:   f.Interface,
		LogLevel:    f.LogLevel,
		SSHUser:     f.SSHUser,
		SSHPassword: f.SSHPassword,
	}
	copy(c.MAC[:], hwAddr)

	if c.IP.Address, err = parseAddress(f.Address); err != nil {
		return nil, errors.Wrap(err, "config: address")
	}
	if c.IP.Broadcast, err = parseAddress(f.Broadcast); err != nil {
		return nil, errors.Wrap(err, "config: broadcast")
	}
	if c.IP.Gateway, err = parseAddress(f.Gateway); err != nil {
		return nil, errors.Wrap(err, "config: gateway")
	}

	return c, nil
}

func parseAddress(s string) (ipstack.Address, error) {
	var a ipstack.Address
	ip := net.ParseIP(s)
	if ip == nil {
		return a, errors.Errorf("bad ipv4 address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return a, errors.Errorf("%q is not ipv4", s)
	}
	copy(a[:], v4)
	return a, nil
}
