// Package config provides configuration loading and management for routinely.
//
// Configuration is loaded using Viper, supporting YAML config files,
// environment variable overrides, and CLI flag binding. The package provides
// sensible defaults that work out of the box.
//
// Key types:
//   - [Config] is the immutable run snapshot shared by all components
//   - [Loader] handles Viper-based configuration loading
//
// Configuration priority (highest to lowest):
//  1. CLI flags bound via [Loader.BindFlags]
//  2. Environment variables (ROUTINELY_ prefix)
//  3. Config file specified by ROUTINELY_CONFIG_PATH
//  4. ./routinely.yaml
//  5. [DefaultConfig] defaults
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Config is the immutable snapshot of run parameters.
//
// It is created once at startup by the [Loader] and shared read-only by
// every component for the duration of the run.
type Config struct {
	// ProjectRoot is the directory the workflow operates on.
	ProjectRoot string `mapstructure:"project_root"`

	// LogDir holds persistent run logs. LogFile, when empty, is derived
	// as LogDir/routine_<timestamp>.log by [Loader].
	LogDir  string `mapstructure:"log_dir"`
	LogFile string `mapstructure:"log_file"`

	// LockDir is the single-instance lock location.
	LockDir string `mapstructure:"lock_dir"`

	// Tools holds the external tool commands the steps invoke.
	Tools Tools `mapstructure:"tools"`

	// DryRun makes steps pass each tool's preview flag instead of
	// suppressing invocation.
	DryRun bool `mapstructure:"dry_run"`

	// AutoConfirm passes each tool's skip-confirmation flag.
	AutoConfirm bool `mapstructure:"auto_confirm"`

	// FailOnBackup gates the overall exit status on the backup step.
	FailOnBackup bool `mapstructure:"fail_on_backup"`

	// EnableSecurity and EnableAudit toggle the optional scan steps.
	EnableSecurity bool `mapstructure:"enable_security"`
	EnableAudit    bool `mapstructure:"enable_audit"`

	// GitPush enables the commit-snapshot step's push.
	GitPush bool `mapstructure:"git_push"`

	// MaxWorkers bounds the concurrent file-processing pass.
	MaxWorkers int `mapstructure:"max_workers"`

	// WorkflowTimeout is the overall deadline in seconds; 0 disables it.
	WorkflowTimeout int `mapstructure:"workflow_timeout"`

	// CoverageThreshold is the minimum test coverage percentage; 0
	// disables the gate.
	CoverageThreshold int `mapstructure:"coverage_threshold"`

	// SourceExt selects files for the per-file reformat pass.
	SourceExt string `mapstructure:"source_ext"`

	// ExcludePatterns are glob patterns matched against root-relative
	// paths; a pattern ending in "/*" also excludes nested paths.
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
}

// Tools names the external commands wrapped by the workflow steps.
//
// The core only invokes these, captures output, and interprets exit codes;
// their logic is out of scope.
type Tools struct {
	// DumpTool is the code-dump binary used by the prune and generate
	// steps, with the respective subcommand argument lists.
	DumpTool      string   `mapstructure:"dump_tool"`
	DumpCleanArgs []string `mapstructure:"dump_clean_args"`
	DumpRunArgs   []string `mapstructure:"dump_run_args"`

	// Formatter is the per-file reformat command; the file path is
	// appended per invocation.
	Formatter []string `mapstructure:"formatter"`

	// TestCommand runs the project test suite.
	TestCommand []string `mapstructure:"test_command"`

	// CleanCommand is the cache cleaner tool.
	CleanCommand []string `mapstructure:"clean_command"`

	// SecurityCommand is the security scanner.
	SecurityCommand []string `mapstructure:"security_command"`

	// BackupCommand creates the project backup.
	BackupCommand []string `mapstructure:"backup_command"`

	// AuditCommand audits dependencies for known vulnerabilities.
	AuditCommand []string `mapstructure:"audit_command"`

	// Git is the git binary used by the commit-snapshot step.
	Git string `mapstructure:"git"`
}

// Per-command timeouts, matching each tool's expected runtime.
const (
	FormatTimeout = 2 * time.Minute
	TestTimeout   = 5 * time.Minute
	CleanTimeout  = 5 * time.Minute
	BackupTimeout = 10 * time.Minute
	DumpTimeout   = 10 * time.Minute
	GitTimeout    = 2 * time.Minute
	ScanTimeout   = 5 * time.Minute
)

// DefaultExcludePatterns returns the built-in exclusion globs.
func DefaultExcludePatterns() []string {
	return []string{
		".git/*",
		"vendor/*",
		"node_modules/*",
		"testdata/*",
		"third_party/*",
		"*.gen.go",
		"*.pb.go",
	}
}

// DefaultConfig returns a new [Config] with sensible defaults.
func DefaultConfig() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		ProjectRoot: cwd,
		LogDir:      filepath.Join(os.TempDir(), "routinely", "logs"),
		LockDir:     filepath.Join(os.TempDir(), "routinely.lock"),
		Tools: Tools{
			DumpTool:        "code-dump",
			DumpCleanArgs:   []string{"batch", "clean"},
			DumpRunArgs:     []string{"batch", "run", "--dirs", "."},
			Formatter:       []string{"goimports", "-w"},
			TestCommand:     []string{"go", "test", "./..."},
			CleanCommand:    []string{"clean-caches"},
			SecurityCommand: []string{"gosec", "-quiet", "./..."},
			BackupCommand:   []string{"create-backup"},
			AuditCommand:    []string{"govulncheck", "./..."},
			Git:             "git",
		},
		GitPush:         true,
		MaxWorkers:      defaultWorkers(),
		SourceExt:       ".go",
		ExcludePatterns: DefaultExcludePatterns(),
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}
