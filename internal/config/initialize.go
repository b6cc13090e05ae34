// Copyright (c) 2022 Whist Technologies, Inc.

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/pflag"
	"github.com/whisthq/whist/backend/cloud-desktop/utils"
)

const (
	envPrefix = "CLOUD_DESKTOP_"
	// configPathEnv overrides the location of the global config file.
	configPathEnv = envPrefix + "CONFIG"
)

// GlobalConfigPath returns the path of the global config file.
func GlobalConfigPath() (string, error) {
	if path := os.Getenv(configPathEnv); path != "" {
		return path, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", utils.MakeError("couldn't find the user config directory: %s", err)
	}
	return filepath.Join(dir, "cloud-desktop", "config.json"), nil
}

// MachineConfigPath returns the path of the config file of a machine, which
// lives next to the global config file.
func MachineConfigPath(globalPath string, machine string) string {
	return filepath.Join(filepath.Dir(globalPath), "machines", machine+".json")
}

// Load merges every configuration layer. The per-machine layer is skipped when
// machine is empty. Flags override the other layers only when they were set
// on the command line, otherwise their defaults fill the missing keys.
func Load(flags *pflag.FlagSet, machine string) (*Config, error) {
	var k = koanf.New(".")

	globalPath, err := GlobalConfigPath()
	if err != nil {
		return nil, err
	}
	if err := getConfigFromFile(k, globalPath); err != nil {
		return nil, err
	}

	if err := getConfigFromEnv(k); err != nil {
		return nil, err
	}

	if machine != "" {
		if err := getConfigFromFile(k, MachineConfigPath(globalPath, machine)); err != nil {
			return nil, err
		}
	}

	if flags != nil {
		if err := getConfigFromFlags(k, flags); err != nil {
			return nil, err
		}
	}

	var c Config
	err = k.UnmarshalWithConf("", &c, koanf.UnmarshalConf{Tag: "koanf"})
	if err != nil {
		return nil, utils.MakeError("error decoding config: %s", err)
	}
	return &c, nil
}

// getConfigFromFile loads a JSON config file. A missing file is an empty
// layer.
func getConfigFromFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	err := k.Load(file.Provider(path), json.Parser())
	if err != nil {
		return utils.MakeError("error loading config %s: %s", path, err)
	}
	return nil
}

func getConfigFromEnv(k *koanf.Koanf) error {
	err := k.Load(env.Provider(envPrefix, ".", envKey), nil)
	if err != nil {
		return utils.MakeError("error loading env to config: %s", err)
	}
	return nil
}

// envKey maps CLOUD_DESKTOP_SNAPSHOT_LABELS__DISK_NAME to
// snapshot-labels.disk-name. The variable pointing at the config file is not a
// config key.
func envKey(s string) string {
	if s == configPathEnv {
		return ""
	}

	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	return strings.ReplaceAll(key, "_", "-")
}

func getConfigFromFlags(k *koanf.Koanf, flags *pflag.FlagSet) error {
	err := k.Load(posflag.Provider(flags, ".", k), nil)
	if err != nil {
		return utils.MakeError("error loading flags to config: %s", err)
	}
	return nil
}
