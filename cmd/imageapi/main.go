package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thrive-mt/imageapi/pkg/config"
	"github.com/thrive-mt/imageapi/pkg/logging"
)

// Set at build time via -ldflags
var (
	version   = "dev"
	buildTime = "unknown"
)

const defaultConfigPath = "imageapi.yaml"

var (
	// Global flags
	configPath string
	outputFmt  string
	logLevel   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "imageapi",
	Short: "Resolve image references into stable, displayable URLs",
	Long: `imageapi turns raw image references plus a display context into URLs
that load reliably: cache tokens are stabilized per category, failed loads
get one retry and then a category fallback image.

Run "imageapi serve" to start the HTTP API, or use the one-shot commands
to inspect what the service would return.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFmt {
		case "text", "json", "yaml":
		default:
			return fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFmt)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default $IMAGEAPI_CONFIG or ./imageapi.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd, resolveCmd, errorCmd, fallbackCmd, checkCmd, versionCmd)
}

// loadConfig reads the configuration the flags point at. A missing default
// file yields the built-in defaults; a missing explicit file is an error.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = os.Getenv("IMAGEAPI_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := config.LoadConfig(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
		path = ""
	default:
		return nil, "", err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, path, nil
}

// initLogging configures pkg/logging from cfg
func initLogging(cfg *config.Config) error {
	if err := logging.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.Logger.Debug("Structured logging initialized",
		zap.String("level", cfg.Logging.Level),
		zap.String("format", cfg.Logging.Format),
		zap.String("go", runtime.Version()))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
