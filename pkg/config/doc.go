// Package config provides configuration loading for the simPRO tap.
//
// A single TapConfig holds everything the tap needs: credentials, the tenant
// base URL and company, paging, and the request gate settings. Files may be
// JSON (what Singer runners pass) or YAML; both are decoded with yaml.v3.
//
// # Environment Variable Substitution
//
// Any ${VAR_NAME} in the file is replaced before decoding, so secrets can stay
// out of the file:
//
//	access_token: ${SIMPRO_ACCESS_TOKEN}
//	company_id: "0"
//	base_url: https://acme.simprosuite.com
//	reliability:
//	  rate_limit_per_sec: 8
//
// # Usage
//
//	cfg, err := config.Load("config.json")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
package config
