package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/fatih/color"
	"github.com/huangsam/codeaudit/core"
	"github.com/huangsam/codeaudit/internal/contract"
	"github.com/huangsam/codeaudit/internal/logger"
	"github.com/huangsam/codeaudit/internal/store"
	"github.com/huangsam/codeaudit/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// All linker flags will be set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg will hold the validated, final configuration.
var cfg = &contract.Config{}

// input holds the raw, unvalidated configuration from all sources (file, env, flags).
// Viper will unmarshal into this struct.
var input = &contract.ConfigRawInput{}

// profile holds profiling configuration.
var profile = &contract.ProfileConfig{}

// env holds the opened store and logger once setup has run.
var env *core.Env

// credentialKeys are only read from the environment or the config file.
var credentialKeys = []string{
	"sonar-token", "sonar-url", "sonar-project", "sonar-page-size", "sonar-max-pages",
	"codacy-token", "codacy-url", "codacy-provider",
	"codefactor-token", "codefactor-url",
	"github-token", "github-url", "coderabbit-login",
	"sarif-files", "task-allocator", "task-allocator-cmd", "task-dispatch-cmd",
}

// startProfiling starts CPU profiling if enabled.
func startProfiling() error {
	if !profile.Enabled {
		return nil
	}

	cpuFile, err := os.Create(profile.Prefix + ".cpu.prof")
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		return fmt.Errorf("could not start CPU profiling: %w", err)
	}

	// Diagnostics go to stderr so reports on stdout stay parseable
	_, err = fmt.Fprintf(os.Stderr, "Profiling enabled. CPU profile: %s.cpu.prof, Memory profile: %s.mem.prof\n", profile.Prefix, profile.Prefix)
	return err
}

// stopProfiling stops profiling and writes memory profile.
func stopProfiling() error {
	if !profile.Enabled {
		return nil
	}

	pprof.StopCPUProfile()

	memFile, err := os.Create(profile.Prefix + ".mem.prof")
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer func() { _ = memFile.Close() }()

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}

	_, err = fmt.Fprintf(os.Stderr, "Profiling complete. Use 'go tool pprof %s.cpu.prof' to analyze.\n", profile.Prefix)
	return err
}

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:   "codeaudit",
	Short: "Collect code-review findings from every analysis service into one audit trail.",
	Long: `Codeaudit pulls findings from CodeRabbit, SonarCloud, Codacy, CodeFactor and
SARIF files into one store, merges duplicates that point at the same line,
and turns the actionable ones into tracked tasks.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Check if a specific config file is provided
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName(".codeaudit")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
	}

	viper.SetEnvPrefix("CODEAUDIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("limit", contract.DefaultResultLimit)
	viper.SetDefault("output", schema.TextOut)
	viper.SetDefault("backend", schema.SQLiteBackend)
	viper.SetDefault("db-connect", "")
	viper.SetDefault("color", "yes")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("run", contract.LatestRunSelector)
	// Unmarshal only sees keys viper knows, so the env-only keys need a default
	for _, key := range credentialKeys {
		viper.SetDefault(key, "")
	}
}

// loadConfigFile reads the config file if one is present.
func loadConfigFile() error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, which is fine; we'll use defaults/env/flags.
	}
	return nil
}

// loadInput merges defaults, config file, env and flags into input.
func loadInput(args []string) error {
	contract.ProcessProfilingConfig(profile, viper.GetString("profile"))
	if err := startProfiling(); err != nil {
		return fmt.Errorf("failed to start profiling: %w", err)
	}
	if err := loadConfigFile(); err != nil {
		return err
	}
	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	input.RepoPathStr = "."
	if len(args) == 1 {
		input.RepoPathStr = args[0]
	}
	return nil
}

// openEnv opens the store and builds the logger from the validated config.
func openEnv(ctx context.Context) error {
	color.NoColor = !cfg.UseColors
	log := logger.New(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	st, err := store.Open(ctx, cfg.Backend, cfg.DBConnect)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	env = core.NewEnv(st, log)
	log.Debug("store opened", "backend", cfg.Backend, "tasks", cfg.Tasks.String())
	return nil
}

// closeEnv releases the store. Safe to call more than once.
func closeEnv() {
	if env == nil {
		return
	}
	if err := env.Store.Close(); err != nil {
		contract.LogWarn("Failed to close store", err)
	}
	env = nil
}

// sharedSetup unmarshals config, runs validation and opens the store.
// Every validation happens before the store is touched.
func sharedSetup(ctx context.Context, _ *cobra.Command, args []string) error {
	if err := loadInput(args); err != nil {
		return err
	}
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}
	return openEnv(ctx)
}

// sharedSetupWrapper wraps sharedSetup to provide context for Cobra's PreRunE.
func sharedSetupWrapper(cmd *cobra.Command, args []string) error {
	return sharedSetup(rootCtx, cmd, args)
}

// runExecutor adapts an executor to cobra's Run, closing the store before
// reporting a fatal error.
func runExecutor(msg string, fn core.ExecutorFunc) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		err := fn(rootCtx, cfg, env)
		closeEnv()
		if stopErr := stopProfiling(); stopErr != nil {
			contract.LogWarn("Failed to stop profiling", stopErr)
		}
		if err != nil {
			contract.LogFatal(msg, err)
		}
	}
}

// Execute runs the root command.
func Execute() error {
	defer closeEnv()
	return rootCmd.Execute()
}
