package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. ROUTINELY_LOCK_DIR.
const envPrefix = "ROUTINELY"

// Loader loads configuration with Viper.
//
// Create with [NewLoader], optionally bind CLI flags with [BindFlags], then
// call [Loader.Load] or [Loader.LoadFromFile].
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with defaults and environment binding set up.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("project_root", defaults.ProjectRoot)
	v.SetDefault("log_dir", defaults.LogDir)
	v.SetDefault("log_file", defaults.LogFile)
	v.SetDefault("lock_dir", defaults.LockDir)
	v.SetDefault("dry_run", defaults.DryRun)
	v.SetDefault("auto_confirm", defaults.AutoConfirm)
	v.SetDefault("fail_on_backup", defaults.FailOnBackup)
	v.SetDefault("enable_security", defaults.EnableSecurity)
	v.SetDefault("enable_audit", defaults.EnableAudit)
	v.SetDefault("git_push", defaults.GitPush)
	v.SetDefault("max_workers", defaults.MaxWorkers)
	v.SetDefault("workflow_timeout", defaults.WorkflowTimeout)
	v.SetDefault("coverage_threshold", defaults.CoverageThreshold)
	v.SetDefault("source_ext", defaults.SourceExt)
	v.SetDefault("exclude_patterns", defaults.ExcludePatterns)
	v.SetDefault("tools.dump_tool", defaults.Tools.DumpTool)
	v.SetDefault("tools.dump_clean_args", defaults.Tools.DumpCleanArgs)
	v.SetDefault("tools.dump_run_args", defaults.Tools.DumpRunArgs)
	v.SetDefault("tools.formatter", defaults.Tools.Formatter)
	v.SetDefault("tools.test_command", defaults.Tools.TestCommand)
	v.SetDefault("tools.clean_command", defaults.Tools.CleanCommand)
	v.SetDefault("tools.security_command", defaults.Tools.SecurityCommand)
	v.SetDefault("tools.backup_command", defaults.Tools.BackupCommand)
	v.SetDefault("tools.audit_command", defaults.Tools.AuditCommand)
	v.SetDefault("tools.git", defaults.Tools.Git)

	return &Loader{v: v}
}

// BindFlags binds CLI flags onto configuration keys. Flag names use dashes,
// keys use underscores; only flags present in the set are bound.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	bindings := map[string]string{
		"project_root":       "project-root",
		"log_dir":            "log-dir",
		"log_file":           "log-file",
		"lock_dir":           "lock-dir",
		"dry_run":            "dry-run",
		"auto_confirm":       "yes",
		"fail_on_backup":     "fail-on-backup",
		"enable_security":    "security",
		"enable_audit":       "audit",
		"git_push":           "git-push",
		"max_workers":        "workers",
		"workflow_timeout":   "workflow-timeout",
		"coverage_threshold": "coverage-threshold",
		"exclude_patterns":   "exclude",
	}
	for key, flag := range bindings {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load reads configuration from the standard locations.
//
// A file named by ROUTINELY_CONFIG_PATH wins; otherwise ./routinely.yaml is
// used when present. A missing config file is not an error: defaults plus
// environment and flags apply.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv(envPrefix + "_CONFIG_PATH"); path != "" {
		return l.LoadFromFile(path)
	}

	l.v.SetConfigName("routinely")
	l.v.SetConfigType("yaml")
	l.v.AddConfigPath(".")
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.finish()
}

// LoadFromFile reads configuration from an explicit file path.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return l.finish()
}

// finish unmarshals and derives the remaining fields.
func (l *Loader) finish() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	cfg.ProjectRoot = root

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if cfg.LogFile == "" {
		ts := time.Now().Format("20060102_150405")
		cfg.LogFile = filepath.Join(cfg.LogDir, fmt.Sprintf("routine_%s.log", ts))
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	return &cfg, nil
}
