// Package cli implements the cardbox command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cardbox-io/cardbox/internal/collection"
	"github.com/cardbox-io/cardbox/internal/common"
	"github.com/cardbox-io/cardbox/internal/filex"
	"github.com/cardbox-io/cardbox/internal/logging"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

const defaultCollection = "cardbox.db"

// rootFlags holds global flag values shared by all subcommands.
type rootFlags struct {
	collection string
	configDir  string
	logFile    string
	yes        bool
}

// NewRootCmd creates the top-level "cardbox" command with global
// flags and all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "cardbox",
		Short: "Manage a spaced-repetition collection file",
		Long: "Cardbox inspects and maintains spaced-repetition collection files:\n" +
			"integrity checks, compaction and scheduler migrations.",
		// subcommand errors are reported by Execute, not as usage
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.collection, "collection", "c", "", "collection file (default: cardbox.db)")
	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: ~/.config/cardbox)")
	root.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "append the action log to this file")
	root.PersistentFlags().BoolVarP(&flags.yes, "yes", "y", false, "answer yes to confirmation prompts")

	root.AddCommand(newInfoCmd(flags))
	root.AddCommand(newCheckCmd(flags))
	root.AddCommand(newOptimizeCmd(flags))
	root.AddCommand(newSchedulerCmd(flags))
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command and returns the process exit code:
// 0 on success, 1 when the user declined or asked for something
// unsupported, 2 on system errors.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, common.ErrAbortSchemaMod) ||
			errors.Is(err, common.ErrUnsupportedSchedVersion) ||
			errors.Is(err, common.ErrInvalidFlag) {
			return exitUserError
		}
		return exitSysError
	}
	return exitSuccess
}

// resolveConfigDir returns the config directory from flag, env, or
// the user default.
func (f *rootFlags) resolveConfigDir() string {
	if f.configDir != "" {
		return f.configDir
	}
	if v := os.Getenv("CARDBOX_CONFIG_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cardbox"
	}
	return filepath.Join(home, ".config", "cardbox")
}

// loadConfig reads config.yaml from the config directory. A missing
// file is not an error; defaults apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("collection", defaultCollection)
	v.SetDefault("log_file", "")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

// resolveCollection returns the collection path: flag beats
// environment beats config file beats default.
func (f *rootFlags) resolveCollection() (string, error) {
	if f.collection != "" {
		return f.collection, nil
	}
	if v := os.Getenv("CARDBOX_COLLECTION"); v != "" {
		return v, nil
	}
	cfg, err := loadConfig(f.resolveConfigDir())
	if err != nil {
		return "", err
	}
	return cfg.GetString("collection"), nil
}

// resolveLogFile returns the action log path, or "" for no log.
func (f *rootFlags) resolveLogFile() string {
	if f.logFile != "" {
		return f.logFile
	}
	if v := os.Getenv("CARDBOX_LOG_FILE"); v != "" {
		return v
	}
	cfg, err := loadConfig(f.resolveConfigDir())
	if err != nil {
		return ""
	}
	return cfg.GetString("log_file")
}

// openCollection opens the resolved collection file with logging and
// the interactive schema-change prompt wired in. The returned cleanup
// closes the log sink.
func openCollection(cmd *cobra.Command, flags *rootFlags, confirm collection.ConfirmFunc) (*collection.Collection, func(), error) {
	path, err := flags.resolveCollection()
	if err != nil {
		return nil, nil, err
	}
	if err := filex.EnsureParentDir(path); err != nil {
		return nil, nil, err
	}

	log := logging.Logger(nil)
	cleanup := func() {}
	if lf := flags.resolveLogFile(); lf != "" {
		fileLog, closer := logging.NewFileLogger(lf)
		log = fileLog
		cleanup = func() { _ = closer.Close() }
	}

	col, err := collection.Open(cmd.Context(), path, &collection.Options{
		Logger:           log,
		SchemaWillChange: confirm,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return col, cleanup, nil
}
