package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Discovery DiscoveryConfig
}

type AppConfig struct {
	// Address is the listen address of the protocol server and
	// operator console, example ":8975".
	Address string
	// DatabasePath is the sqlite file location.
	DatabasePath string
	// StorageRoot is where downloaded clips are kept, one directory
	// per session.
	StorageRoot string
	// ConsoleKey protects the operator console login.
	ConsoleKey string
	// CookieSecret signs the console session cookie.
	CookieSecret string
}

type DiscoveryConfig struct {
	// Enabled controls mDNS advertisement of the coordinator.
	Enabled bool
	// Instance is the advertised service instance name.
	Instance string
	// Port is the advertised port; zero uses the listen port.
	Port int
}

// Load reads the optional YAML config file and fills defaults. A
// missing file is not an error, every key has a default.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app.address", ":8975")
	v.SetDefault("app.database_path", "varcoord.db")
	v.SetDefault("app.storage_root", "storage")
	v.SetDefault("app.console_key", "")
	v.SetDefault("app.cookie_secret", "varcoord-dev-secret")
	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.instance", "varcoord")
	v.SetDefault("discovery.port", 0)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	conf := &Config{
		App: AppConfig{
			Address:      v.GetString("app.address"),
			DatabasePath: v.GetString("app.database_path"),
			StorageRoot:  v.GetString("app.storage_root"),
			ConsoleKey:   v.GetString("app.console_key"),
			CookieSecret: v.GetString("app.cookie_secret"),
		},
		Discovery: DiscoveryConfig{
			Enabled:  v.GetBool("discovery.enabled"),
			Instance: v.GetString("discovery.instance"),
			Port:     v.GetInt("discovery.port"),
		},
	}

	return conf, nil
}
