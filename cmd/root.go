package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"d2r-save-guard/internal/config"
	"d2r-save-guard/internal/logging"
	"d2r-save-guard/internal/store"
)

var cfgFile string

// CLI flag variables
var (
	saveDirFlag   string
	backupDirFlag string
	compressFlag  bool
	maxBackups    int
	cooldownSecs  int

	verbose bool
	quiet   bool
	logFile string
	noColor bool
)

// Version information, injected by main
var (
	appVersion = "dev"
	buildTime  = "unknown"
	gitCommit  = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "d2r-save-guard",
	Short: "Backup and restore tool for Diablo II: Resurrected save files",
	Long: `d2r-save-guard protects Diablo II: Resurrected characters by keeping
timestamped backups of .d2s save files in a flat backup directory. Backup
identity lives entirely in filenames, so the backup directory can be copied,
pruned, or inspected with nothing but a file manager.

Besides one-shot backups and restores, the watch command runs a daemon that
monitors the save directory and takes automatic backups on a schedule or
when a save file crosses a configured size threshold.

Examples:
  # Back up one character
  d2r-save-guard backup Amazon.d2s

  # Back up every save file
  d2r-save-guard backup

  # List backups for one character
  d2r-save-guard list Amazon.d2s

  # Restore a specific backup (a safety copy of the current file is taken)
  d2r-save-guard restore Amazon.d2s_20251002_082801.d2s

  # Watch the save directory and back up automatically
  d2r-save-guard watch --config=config.yaml`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// SetVersionInfo records build-time version metadata for the version command
func SetVersionInfo(version, built, commit string) {
	appVersion = version
	buildTime = built
	gitCommit = commit
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.d2r-save-guard.yaml)")
	rootCmd.PersistentFlags().StringVar(&saveDirFlag, "save-dir", "", "directory containing .d2s save files")
	rootCmd.PersistentFlags().StringVar(&backupDirFlag, "backup-dir", "", "backup directory (default is <save-dir>/Backups)")
	rootCmd.PersistentFlags().BoolVar(&compressFlag, "compress", false, "store backups as zip archives")
	rootCmd.PersistentFlags().IntVar(&maxBackups, "max-backups", 0, "maximum backups kept per save file (1-100)")
	rootCmd.PersistentFlags().IntVar(&cooldownSecs, "cooldown", 0, "minimum seconds between automatic backups of one file (10-300)")

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	viper.BindPFlag("save_dir", rootCmd.PersistentFlags().Lookup("save-dir"))
	viper.BindPFlag("backup_dir", rootCmd.PersistentFlags().Lookup("backup-dir"))
	viper.BindPFlag("enable_compression", rootCmd.PersistentFlags().Lookup("compress"))
	viper.BindPFlag("max_backups_per_file", rootCmd.PersistentFlags().Lookup("max-backups"))
	viper.BindPFlag("backup_cooldown_seconds", rootCmd.PersistentFlags().Lookup("cooldown"))
	viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigName(".d2r-save-guard")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("D2R_SAVE_GUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	color.NoColor = noColor || !isTerminal(os.Stdout)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// loadConfig builds the validated configuration from flags, environment,
// and the config file.
func loadConfig() (*config.Config, error) {
	if verbose && quiet {
		return nil, fmt.Errorf("--verbose and --quiet flags are mutually exclusive")
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	if verbose {
		cfg.Logging.Level = "verbose"
	}
	if quiet {
		cfg.Logging.Level = "quiet"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(logging.Config{
		Level:   logging.LogLevel(cfg.Logging.Level),
		Format:  cfg.Logging.Format,
		LogFile: cfg.Logging.File,
	})
}

// newStore builds the backup store for one-shot commands. Watch mode goes
// through the application package instead, which adds metrics and events.
func newStore(cfg *config.Config, logger *logging.Logger) (*store.Store, error) {
	return store.New(store.Options{
		BackupDir:         cfg.EffectiveBackupDir(),
		Compress:          cfg.EnableCompression,
		MaxBackupsPerFile: cfg.MaxBackupsPerFile,
		Cooldown:          cfg.Cooldown(),
	}, logger, nil)
}

// setup is the shared preamble of the one-shot commands
func setup() (*config.Config, *logging.Logger, *store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	st, err := newStore(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, st, nil
}
