// Package config loads the settings of the standalone audit command from
// flags, environment variables and an optional YAML file.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/locktivity/epack-collector-template-security/internal/collector"
	"github.com/locktivity/epack-collector-template-security/internal/logging"
	"github.com/locktivity/epack-collector-template-security/internal/remediation"
)

// Setting keys, shared by flags (with "-" for "_"), config files and defaults.
const (
	KeyGitHubToken          = "github_token"
	KeyOwners               = "owners"
	KeyTemplate             = "template"
	KeyBranches             = "branches"
	KeyReportMode           = "report_mode"
	KeyAutoFix              = "auto_fix"
	KeyFixCodeowners        = "fix_codeowners"
	KeyFixDependabot        = "fix_dependabot"
	KeyMaxAutofixPRs        = "max_autofix_prs"
	KeyCodeownersOwner      = "codeowners_owner"
	KeyDependabotEcosystems = "dependabot_ecosystems"
	KeyDependabotInterval   = "dependabot_interval"
	KeyNewWithinHours       = "new_within_hours"
	KeyMaxPages             = "max_pages"
	KeyFast                 = "fast"
	KeyIncludePatterns      = "include_patterns"
	KeyExcludePatterns      = "exclude_patterns"
	KeyAppID                = "app_id"
	KeyInstallationID       = "installation_id"
	KeyPrivateKey           = "private_key"
	KeyJSONOutputFile       = "json_output_file"
	KeyLogLevel             = "log_level"
	KeyLogFormat            = "log_format"
)

// Environment variables per key; the first one set wins.
var envNames = map[string][]string{
	KeyGitHubToken:          {"GH_TOKEN", "GITHUB_TOKEN"},
	KeyOwners:               {"ORGS"},
	KeyTemplate:             {"TEMPLATE_FULL_NAME"},
	KeyBranches:             {"BRANCHES", "PROTECT_BRANCHES"},
	KeyReportMode:           {"REPORT_MODE"},
	KeyAutoFix:              {"AUTO_FIX"},
	KeyFixCodeowners:        {"FIX_CODEOWNERS"},
	KeyFixDependabot:        {"FIX_DEPENDABOT"},
	KeyMaxAutofixPRs:        {"MAX_AUTOFIX_PRS"},
	KeyCodeownersOwner:      {"CODEOWNERS_OWNER"},
	KeyDependabotEcosystems: {"DEPENDABOT_ECOSYSTEMS"},
	KeyDependabotInterval:   {"DEPENDABOT_INTERVAL"},
	KeyNewWithinHours:       {"NEW_WITHIN_HOURS"},
	KeyMaxPages:             {"MAX_PAGES"},
	KeyFast:                 {"FAST"},
	KeyIncludePatterns:      {"INCLUDE_PATTERNS"},
	KeyExcludePatterns:      {"EXCLUDE_PATTERNS"},
	KeyAppID:                {"GITHUB_APP_ID"},
	KeyInstallationID:       {"GITHUB_APP_INSTALLATION_ID"},
	KeyPrivateKey:           {"GITHUB_APP_PRIVATE_KEY"},
	KeyJSONOutputFile:       {"JSON_OUTPUT_FILE"},
	KeyLogLevel:             {"LOG_LEVEL"},
	KeyLogFormat:            {"LOG_FORMAT"},
}

// Settings is the flat settings document of the audit command.
type Settings struct {
	GitHubToken          string   `mapstructure:"github_token"`
	Owners               []string `mapstructure:"owners"`
	Template             string   `mapstructure:"template"`
	Branches             []string `mapstructure:"branches"`
	ReportMode           string   `mapstructure:"report_mode"`
	AutoFix              bool     `mapstructure:"auto_fix"`
	FixCodeowners        bool     `mapstructure:"fix_codeowners"`
	FixDependabot        bool     `mapstructure:"fix_dependabot"`
	MaxAutofixPRs        int      `mapstructure:"max_autofix_prs"`
	CodeownersOwner      string   `mapstructure:"codeowners_owner"`
	DependabotEcosystems []string `mapstructure:"dependabot_ecosystems"`
	DependabotInterval   string   `mapstructure:"dependabot_interval"`
	NewWithinHours       int      `mapstructure:"new_within_hours"`
	MaxPages             int      `mapstructure:"max_pages"`
	Fast                 bool     `mapstructure:"fast"`
	IncludePatterns      []string `mapstructure:"include_patterns"`
	ExcludePatterns      []string `mapstructure:"exclude_patterns"`
	AppID                int64    `mapstructure:"app_id"`
	InstallationID       int64    `mapstructure:"installation_id"`
	PrivateKey           string   `mapstructure:"private_key"`
	JSONOutputFile       string   `mapstructure:"json_output_file"`
	LogLevel             string   `mapstructure:"log_level"`
	LogFormat            string   `mapstructure:"log_format"`
}

func defaults() map[string]any {
	d := collector.DefaultConfig()
	return map[string]any{
		KeyBranches:           d.Branches,
		KeyReportMode:         string(d.Mode),
		KeyAutoFix:            d.AutoFix.Enabled,
		KeyFixCodeowners:      d.AutoFix.Codeowners,
		KeyFixDependabot:      d.AutoFix.Dependabot,
		KeyMaxAutofixPRs:      remediation.DefaultMaxPullRequests,
		KeyDependabotInterval: remediation.DefaultDependabotInterval,
		KeyLogLevel:           string(logging.LevelInfo),
		KeyLogFormat:          string(logging.FormatAuto),
	}
}

// FlagName returns the command-line flag name of a key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// AddFlags registers one flag per setting. List flags take comma or space
// separated values. Secrets have no flags and come from the environment or
// the config file.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(FlagName(KeyOwners), "", "organizations or users to scan")
	fs.String(FlagName(KeyTemplate), "", "template repository as owner/name")
	fs.String(FlagName(KeyBranches), "", "branches to check for protection (default main,test,develop)")
	fs.String(FlagName(KeyReportMode), "", "template-only or all")
	fs.Bool(FlagName(KeyAutoFix), false, "open pull requests for missing baseline files")
	fs.Bool(FlagName(KeyFixCodeowners), true, "generate CODEOWNERS when auto-fixing")
	fs.Bool(FlagName(KeyFixDependabot), true, "generate dependabot config when auto-fixing")
	fs.Int(FlagName(KeyMaxAutofixPRs), remediation.DefaultMaxPullRequests, "maximum pull requests opened or reused per run")
	fs.String(FlagName(KeyCodeownersOwner), "", "owner written to generated CODEOWNERS (default: repository owner)")
	fs.String(FlagName(KeyDependabotEcosystems), "", "package ecosystems in generated dependabot config (default github-actions)")
	fs.String(FlagName(KeyDependabotInterval), "", "update interval in generated dependabot config (default weekly)")
	fs.Int(FlagName(KeyNewWithinHours), 0, "list template-derived repositories created in the last N hours")
	fs.Int(FlagName(KeyMaxPages), 0, "maximum listing pages per owner, 0 for all")
	fs.Bool(FlagName(KeyFast), false, "list only the first page of repositories per owner")
	fs.String(FlagName(KeyIncludePatterns), "", "repository name patterns to include")
	fs.String(FlagName(KeyExcludePatterns), "", "repository name patterns to exclude")
	fs.Int64(FlagName(KeyAppID), 0, "GitHub App ID")
	fs.Int64(FlagName(KeyInstallationID), 0, "GitHub App installation ID")
	fs.String(FlagName(KeyJSONOutputFile), "", "write findings to this file instead of stdout")
	fs.String(FlagName(KeyLogLevel), "", "debug, info, warn or error")
	fs.String(FlagName(KeyLogFormat), "", "structured, console or auto")
}

// Loader resolves Settings with precedence flag > environment > config file > default.
type Loader struct {
	flags *pflag.FlagSet
}

// NewLoader creates a Loader reading the given flags, which may be nil.
func NewLoader(flags *pflag.FlagSet) *Loader {
	return &Loader{flags: flags}
}

// Load resolves settings. configFile is optional.
func (l *Loader) Load(configFile string) (Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	for key, names := range envNames {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Settings{}, fmt.Errorf("binding environment for %s: %w", key, err)
		}
	}

	if l.flags != nil {
		for key := range envNames {
			flag := l.flags.Lookup(FlagName(key))
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Settings{}, fmt.Errorf("binding flag %s: %w", flag.Name, err)
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	var settings Settings
	err := v.Unmarshal(&settings, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		SplitListHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)))
	if err != nil {
		return Settings{}, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return settings, nil
}

// SplitListHook decodes "a,b c" into []string{"a", "b", "c"}.
func SplitListHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}
		return SplitList(data.(string)), nil
	}
}

// SplitList splits on commas and whitespace, dropping empty items.
func SplitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// CollectorConfig maps settings onto the collector configuration.
func (s Settings) CollectorConfig() collector.Config {
	maxPages := s.MaxPages
	if s.Fast && maxPages == 0 {
		maxPages = 1
	}
	return collector.Config{
		Owners:          s.Owners,
		Template:        s.Template,
		Branches:        s.Branches,
		Mode:            collector.ReportMode(strings.ToLower(s.ReportMode)),
		GitHubToken:     s.GitHubToken,
		AppID:           s.AppID,
		InstallationID:  s.InstallationID,
		PrivateKey:      s.PrivateKey,
		IncludePatterns: s.IncludePatterns,
		ExcludePatterns: s.ExcludePatterns,
		NewWithinHours:  s.NewWithinHours,
		MaxPages:        maxPages,
		AutoFix: collector.AutoFixConfig{
			Enabled:              s.AutoFix,
			MaxPullRequests:      s.MaxAutofixPRs,
			Codeowners:           s.FixCodeowners,
			Dependabot:           s.FixDependabot,
			CodeownersOwner:      s.CodeownersOwner,
			DependabotEcosystems: s.DependabotEcosystems,
			DependabotInterval:   s.DependabotInterval,
		},
	}
}
