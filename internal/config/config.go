// Package config loads the two INI files that drive ariloadgen:
// configs/asterisk.ini ([ari], optional [telemetry]) and
// configs/calls.ini ([calls]).
package config

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// ARI holds the connection parameters for the Asterisk REST Interface.
type ARI struct {
	Host     string
	Port     string
	Username string
	Secret   string
	App      string
}

// Telemetry holds the optional message-bus fan-out configuration. BusURL
// is empty when the section is absent, which disables the publisher.
type Telemetry struct {
	BusURL string
}

// Calls holds the call-generation driver's pacing and dial parameters.
type Calls struct {
	Count    int
	Driver   string
	Trunk    string
	Phone    string
	CallerID string
}

// Config is the fully loaded configuration for one run.
type Config struct {
	ARI       ARI
	Telemetry Telemetry
	Calls     Calls
}

// Load reads asteriskPath ([ari], optional [telemetry]) and callsPath
// ([calls]), both INI files, and returns the combined configuration.
func Load(asteriskPath, callsPath string) (Config, error) {
	var cfg Config

	asteriskViper := viper.New()
	asteriskViper.SetConfigFile(asteriskPath)
	asteriskViper.SetConfigType("ini")
	if err := asteriskViper.ReadInConfig(); err != nil {
		return cfg, eris.Wrapf(err, "read %s", asteriskPath)
	}

	cfg.ARI = ARI{
		Host:     asteriskViper.GetString("ari.host"),
		Port:     asteriskViper.GetString("ari.port"),
		Username: asteriskViper.GetString("ari.username"),
		Secret:   asteriskViper.GetString("ari.secret"),
		App:      asteriskViper.GetString("ari.app"),
	}
	cfg.Telemetry = Telemetry{
		BusURL: asteriskViper.GetString("telemetry.bus_url"),
	}

	callsViper := viper.New()
	callsViper.SetConfigFile(callsPath)
	callsViper.SetConfigType("ini")
	if err := callsViper.ReadInConfig(); err != nil {
		return cfg, eris.Wrapf(err, "read %s", callsPath)
	}

	cfg.Calls = Calls{
		Count:    callsViper.GetInt("calls.count"),
		Driver:   callsViper.GetString("calls.driver"),
		Trunk:    callsViper.GetString("calls.trunk"),
		Phone:    callsViper.GetString("calls.phone"),
		CallerID: callsViper.GetString("calls.callerid"),
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ARI.Host == "" || c.ARI.Port == "" || c.ARI.App == "" {
		return eris.New("asterisk.ini [ari]: host, port and app are required")
	}
	if c.Calls.Count <= 0 {
		return eris.New("calls.ini [calls]: count must be positive")
	}
	if c.Calls.Driver == "" || c.Calls.Trunk == "" || c.Calls.Phone == "" {
		return eris.New("calls.ini [calls]: driver, trunk and phone are required")
	}
	return nil
}
