package config

import (
	"reflect"
	"sort"
	"strings"

	logx "costwatch/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus
// safe structured attrs for logging. Secrets and tokens never appear in
// the attrs, only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.Bool("server.allow_non_loopback", newCfg.Server.AllowNonLoopback),
		)
	}

	// Auth (never log the secret)
	if (strings.TrimSpace(oldCfg.Auth.Secret) != "") != (strings.TrimSpace(newCfg.Auth.Secret) != "") ||
		oldCfg.Auth.Secret != newCfg.Auth.Secret ||
		!reflect.DeepEqual(oldCfg.Auth.AllowedOrigins, newCfg.Auth.AllowedOrigins) ||
		oldCfg.Auth.RateLimitPerHour != newCfg.Auth.RateLimitPerHour {
		changed = append(changed, "auth")
		attrs = append(attrs,
			logx.Bool("auth.secret_set", strings.TrimSpace(newCfg.Auth.Secret) != ""),
			logx.Int("auth.allowed_origin_count", len(newCfg.Auth.AllowedOrigins)),
			logx.Int("auth.rate_limit_per_hour", newCfg.Auth.RateLimitPerHour),
		)
	}

	if !reflect.DeepEqual(oldCfg.Target, newCfg.Target) {
		changed = append(changed, "target")
		attrs = append(attrs,
			logx.String("target.base_url", strings.TrimSpace(newCfg.Target.BaseURL)),
			logx.String("target.client_timeout", strings.TrimSpace(newCfg.Target.ClientTimeout)),
		)
	}

	// Logging (never log the telegram token)
	oL, nL := oldCfg.Logging, newCfg.Logging
	if oL.Level != nL.Level || oL.Console != nL.Console ||
		!reflect.DeepEqual(oL.File, nL.File) ||
		oL.Alerts.Enabled != nL.Alerts.Enabled ||
		oL.Alerts.MinLevel != nL.Alerts.MinLevel ||
		oL.Alerts.RatePerSec != nL.Alerts.RatePerSec ||
		nL.Alerts.Telegram != oL.Alerts.Telegram {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", nL.Level),
			logx.Bool("logx.console", nL.Console),
			logx.Bool("logx.file_enabled", nL.File.Enabled),
			logx.Bool("logx.alerts_enabled", nL.Alerts.Enabled),
			logx.Bool("logx.alert_token_set", strings.TrimSpace(nL.Alerts.Telegram.Token) != ""),
		)
	}

	// Storage (nil means disabled)
	var oDriver, nDriver string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
		)
	}

	if !reflect.DeepEqual(oldCfg.Tasks, newCfg.Tasks) {
		changed = append(changed, "tasks")
		attrs = append(attrs, logx.Int("tasks.count", len(newCfg.Tasks)))
	}

	sort.Strings(changed)
	return changed, attrs
}
