package config

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaultIsValidForUDP(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default(): %v", err)
	}
}

func TestValidateRejectsUnknownTransport(t *testing.T) {
	conf := Default()
	conf.Transport.Kind = "carrier-pigeon"
	if err := conf.Validate(); err == nil {
		t.Fatal("expected an error for an unknown transport kind")
	}
}

func TestValidateRequiresDeviceForSerial(t *testing.T) {
	conf := Default()
	conf.Transport.Kind = "serial"
	conf.Transport.Device = ""
	if err := conf.Validate(); err == nil {
		t.Fatal("expected an error for a serial transport with no device")
	}
}

func TestFlagsApplyOnlyOverridesChangedFlags(t *testing.T) {
	conf := Default()
	conf.Transport.Port = 2019

	var flags Flags
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.AddFlags(flagSet)

	if err := flagSet.Parse([]string{"--transport=tcp"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	result := flags.Apply(conf, flagSet)
	if result.Transport.Kind != "tcp" {
		t.Fatalf("Transport.Kind = %q, want %q", result.Transport.Kind, "tcp")
	}
	if result.Transport.Port != 2019 {
		t.Fatalf("Transport.Port = %d, want unchanged 2019", result.Transport.Port)
	}
}
