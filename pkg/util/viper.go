package util

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable consulted for configuration.
const EnvPrefix = "CWSD"

// GetSubViper returns the configuration section at key, which may be a dotted path such as
// "cloudwatch.retry".  A missing section yields an empty viper, so defaults and environment
// variables still apply.  Environment variables for the section are named
// CWSD_<SECTION>_<PARAM>, with dots and dashes replaced by underscores.
func GetSubViper(v *viper.Viper, key string) *viper.Viper {
	sub := v.Sub(key)
	if sub == nil {
		sub = viper.New()
	}
	InitViper(sub, key)
	return sub
}

// InitViper enables environment variable lookup on v.  Nested vipers do not inherit these
// settings, so it must be called for each one; GetSubViper does this.
func InitViper(v *viper.Viper, section string) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.SetEnvPrefix(envPrefixFor(section))
	v.SetTypeByDefaultValue(true)
	v.AutomaticEnv()
}

func envPrefixFor(section string) string {
	if section == "" {
		return EnvPrefix
	}
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(section))
}
