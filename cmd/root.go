package cmd

import (
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/impet14/inverter-automator/internal/pkg/logging"
)

var (
	_cfgFile string
	_debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "inverterctl",
	Short: "Control an inverter's output priority through the DESS Monitor cloud API",

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _debug {
			logrus.SetLevel(logrus.DebugLevel)
		}

		return logging.Configure(viper.GetViper())
	},

	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the top level command processor
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Logger(nil).WithError(err).Error("running command")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&_cfgFile, "config", "", "config file (default is $HOME/.inverterctl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&_debug, "debug", "d", false, "enable debug logging")
}

func initConfig() {
	if _cfgFile != "" {
		viper.SetConfigFile(_cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".inverterctl")
	}

	// Secrets usually arrive through the environment when run from cron,
	// eg. INVERTERCTL_DESS_PASSWORD, INVERTERCTL_TELEGRAM_TOKEN
	viper.SetEnvPrefix("inverterctl")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logging.Logger(nil).Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if !viper.IsSet(f) || viper.GetString(f) == "" {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}
