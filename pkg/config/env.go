package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SIMPRO_ACCESS_TOKEN
// or SIMPRO_PERFORMANCE_PAGE_SIZE.
const EnvPrefix = "SIMPRO"

// NewEnv returns a viper instance reading SIMPRO_* variables, with nested
// keys separated by underscores.
func NewEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyEnv overrides cfg with any value set in v. Unset keys leave cfg
// untouched.
func ApplyEnv(cfg *TapConfig, v *viper.Viper) {
	str := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	str("access_token", &cfg.AccessToken)
	str("company_id", &cfg.CompanyID)
	str("base_url", &cfg.BaseURL)
	str("user_agent", &cfg.UserAgent)
	str("timezone", &cfg.Timezone)
	str("log_level", &cfg.LogLevel)

	if v.GetString("performance.page_size") != "" {
		cfg.Performance.PageSize = v.GetInt("performance.page_size")
	}
	if v.GetString("performance.max_concurrency") != "" {
		cfg.Performance.MaxConcurrency = v.GetInt("performance.max_concurrency")
	}
	if v.GetString("reliability.rate_limit_per_sec") != "" {
		cfg.Reliability.RateLimitPerSec = v.GetFloat64("reliability.rate_limit_per_sec")
	}
	if v.GetString("reliability.rate_burst") != "" {
		cfg.Reliability.RateBurst = v.GetInt("reliability.rate_burst")
	}
	if v.GetString("reliability.request_timeout") != "" {
		cfg.Reliability.RequestTimeout = v.GetDuration("reliability.request_timeout")
	}
}
