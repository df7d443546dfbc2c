package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig reads the daemon configuration. An explicit path wins;
// otherwise upgraded.yaml is searched in the working directory and
// /etc/upgraded. Environment variables override file values with the
// UPGRADED_ prefix (dots become underscores, e.g. UPGRADED_SERVER_PORT).
func LoadConfig(path string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("store.path", "upgraded.db")
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.org", "netops")
	v.SetDefault("influx.bucket", "telemetry")
	v.SetDefault("influx.token", "")
	v.SetDefault("telemetry.timeout", "10s")
	v.SetDefault("gate.enabled", true)
	v.SetDefault("gate.model", "gpt-4o-mini")
	v.SetDefault("gate.base_url", "")
	v.SetDefault("gate.api_key", "")
	v.SetDefault("gate.timeout", "30s")
	v.SetDefault("ansible.dir", "ansible")
	v.SetDefault("ansible.timeout", "5m")
	v.SetDefault("policy.vendor_overlay", "")
	v.SetDefault("policy.pre_checks", []string{})

	v.SetEnvPrefix("UPGRADED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("upgraded")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/upgraded")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover it.
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return v, nil
}
