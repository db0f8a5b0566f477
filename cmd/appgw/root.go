// cmd/appgw/root.go
// Root command for the `appgw` CLI. Wires common flags, global
// initialisation (logger, config file) and adds top-level sub-commands
// located in sibling files (serve.go, validate.go, version.go).
package main

import (
    "fmt"
    "os"
    "path/filepath"
    "time"

    "github.com/spf13/cobra"
    "github.com/spf13/viper"
    "go.uber.org/zap"

    "github.com/kestrelgw/appgw/internal/logging"
)

var (
    cfgFile string
    logJSON bool

    rootCmd = &cobra.Command{
        Use:   "appgw",
        Short: "appgw - application API gateway",
        Long:  `appgw terminates websocket client sessions, resolves JSON-RPC-shaped calls against a declarative routing table, and fans out backend events to subscribers.`,
        PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
            if logging.Initialised() {
                return nil
            }
            return initLogger()
        },
    }
)

func init() {
    cobra.OnInitialize(initConfig)

    rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file (YAML/TOML/JSON)")
    rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Enable JSON log output (default is human-friendly console)")

    rootCmd.AddCommand(newServeCmd())
    rootCmd.AddCommand(newValidateCmd())
    rootCmd.AddCommand(newVersionCmd())
}

// Execute is called by main.main().
func Execute() {
    if err := rootCmd.Execute(); err != nil {
        _, _ = fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }
}

func initConfig() {
    if cfgFile != "" {
        viper.SetConfigFile(cfgFile)
    } else {
        home, err := os.UserHomeDir()
        if err == nil {
            viper.AddConfigPath(filepath.Join(home, ".config", "appgw"))
        }
        viper.SetConfigName("config")
    }

    viper.SetEnvPrefix("APPGW")
    viper.AutomaticEnv()

    if err := viper.ReadInConfig(); err == nil {
        logging.Sugar().Infof("using config file: %s", viper.ConfigFileUsed())
    }
}

func initLogger() error {
    cfg := zap.NewProductionConfig()
    if !logJSON {
        cfg = zap.NewDevelopmentConfig()
    }
    cfg.EncoderConfig.EncodeTime = zap.TimeEncoder(func(t time.Time, enc zap.PrimitiveArrayEncoder) {
        enc.AppendString(t.Format(time.RFC3339))
    })

    logger, err := cfg.Build()
    if err != nil {
        return err
    }
    logging.Set(logger)
    logging.Sugar().Infow("appgw starting", "version", appVersion)
    return nil
}
