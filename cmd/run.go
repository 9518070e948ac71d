package cmd

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/impet14/inverter-automator/internal/pkg/dessmon"
	"github.com/impet14/inverter-automator/internal/pkg/logging"
	"github.com/impet14/inverter-automator/internal/pkg/notify"
	"github.com/impet14/inverter-automator/internal/pkg/runner"
)

var _runCmdOpts struct {
	force         bool
	attempts      int
	retryDelay    time.Duration
	apiTimeout    time.Duration
	authURL       string
	apiURL        string
	username      string
	password      string
	token         string
	secret        string
	pn            string
	sn            string
	devcode       string
	devaddr       string
	timezone      string
	telegramToken string
	telegramChat  string
}

var runCmd = &cobra.Command{
	Use:   "run <command>",
	Short: "Execute one inverter command (read-status, set-solar or set-sbu)",
	Args:  cobra.ExactArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doRun(args[0]); err != nil {
			return err
		}

		return nil
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("dess.pn", "dess.sn", "dess.devcode", "dess.devaddr")
	},
}

func init() {
	runCmd.Flags().BoolVar(&_runCmdOpts.force, "force", false, "run even during the billing-period hold")
	runCmd.Flags().IntVar(&_runCmdOpts.attempts, "attempts", 3, "attempts for a mutating command before giving up")
	runCmd.Flags().DurationVar(&_runCmdOpts.retryDelay, "retry-delay", time.Second*5, "pause between attempts, eg. 5s or 1m")
	runCmd.Flags().DurationVar(&_runCmdOpts.apiTimeout, "api-timeout", time.Second*45, "maximum duration of a control API call, eg. 1m or 10s")
	runCmd.Flags().StringVar(&_runCmdOpts.authURL, "dess-auth-url", "", "DESS Monitor authentication endpoint (default is the public one)")
	runCmd.Flags().StringVar(&_runCmdOpts.apiURL, "dess-api-url", "", "DESS Monitor command endpoint (default is the public one)")
	runCmd.Flags().StringVar(&_runCmdOpts.username, "dess-username", "", "DESS Monitor account name")
	runCmd.Flags().StringVar(&_runCmdOpts.password, "dess-password", "", "DESS Monitor account password")
	runCmd.Flags().StringVar(&_runCmdOpts.token, "dess-token", "", "pre-issued DESS Monitor session token (alternative to username/password)")
	runCmd.Flags().StringVar(&_runCmdOpts.secret, "dess-secret", "", "pre-issued DESS Monitor session secret")
	runCmd.Flags().StringVar(&_runCmdOpts.pn, "pn", "", "datalogger PN of the inverter")
	runCmd.Flags().StringVar(&_runCmdOpts.sn, "sn", "", "serial number of the inverter")
	runCmd.Flags().StringVar(&_runCmdOpts.devcode, "devcode", "", "device code of the inverter")
	runCmd.Flags().StringVar(&_runCmdOpts.devaddr, "devaddr", "", "device address of the inverter")
	runCmd.Flags().StringVar(&_runCmdOpts.timezone, "timezone", "Asia/Bangkok", "timezone the billing-period hold is evaluated in")
	runCmd.Flags().StringVar(&_runCmdOpts.telegramToken, "telegram-token", "", "Telegram bot token for outcome notifications")
	runCmd.Flags().StringVar(&_runCmdOpts.telegramChat, "telegram-chat-id", "", "Telegram chat the outcome notifications go to")

	errPanic(viper.GetViper().BindPFlag("run.force", runCmd.Flags().Lookup("force")))
	errPanic(viper.GetViper().BindPFlag("run.attempts", runCmd.Flags().Lookup("attempts")))
	errPanic(viper.GetViper().BindPFlag("run.retry-delay", runCmd.Flags().Lookup("retry-delay")))
	errPanic(viper.GetViper().BindPFlag("run.timezone", runCmd.Flags().Lookup("timezone")))
	errPanic(viper.GetViper().BindPFlag("dess.api-timeout", runCmd.Flags().Lookup("api-timeout")))
	errPanic(viper.GetViper().BindPFlag("dess.auth-url", runCmd.Flags().Lookup("dess-auth-url")))
	errPanic(viper.GetViper().BindPFlag("dess.api-url", runCmd.Flags().Lookup("dess-api-url")))
	errPanic(viper.GetViper().BindPFlag("dess.username", runCmd.Flags().Lookup("dess-username")))
	errPanic(viper.GetViper().BindPFlag("dess.password", runCmd.Flags().Lookup("dess-password")))
	errPanic(viper.GetViper().BindPFlag("dess.token", runCmd.Flags().Lookup("dess-token")))
	errPanic(viper.GetViper().BindPFlag("dess.secret", runCmd.Flags().Lookup("dess-secret")))
	errPanic(viper.GetViper().BindPFlag("dess.pn", runCmd.Flags().Lookup("pn")))
	errPanic(viper.GetViper().BindPFlag("dess.sn", runCmd.Flags().Lookup("sn")))
	errPanic(viper.GetViper().BindPFlag("dess.devcode", runCmd.Flags().Lookup("devcode")))
	errPanic(viper.GetViper().BindPFlag("dess.devaddr", runCmd.Flags().Lookup("devaddr")))
	errPanic(viper.GetViper().BindPFlag("telegram.token", runCmd.Flags().Lookup("telegram-token")))
	errPanic(viper.GetViper().BindPFlag("telegram.chat-id", runCmd.Flags().Lookup("telegram-chat-id")))

	rootCmd.AddCommand(runCmd)
}

func doRun(name string) error {
	command, err := runner.ParseCommand(name)
	if err != nil {
		return err
	}

	device := dessmon.Device{
		PN:      viper.GetString("dess.pn"),
		SN:      viper.GetString("dess.sn"),
		Devcode: viper.GetString("dess.devcode"),
		Devaddr: viper.GetString("dess.devaddr"),
	}

	api := dessmon.NewLiveClient(device).
		WithEndpoints(viper.GetString("dess.auth-url"), viper.GetString("dess.api-url")).
		WithTimeout(viper.GetDuration("dess.api-timeout"))

	token := viper.GetString("dess.token")
	secret := viper.GetString("dess.secret")
	username := viper.GetString("dess.username")
	password := viper.GetString("dess.password")

	switch {
	case token != "" && secret != "":
		api = api.WithSession(token, secret)
		// keep the account around, if set, for transparent re-login
		if username != "" && password != "" {
			api = api.WithAccount(username, password)
		}
	case username != "" && password != "":
		api = api.WithAccount(username, password)
	default:
		return errors.New("either dess.token/dess.secret or dess.username/dess.password must be configured")
	}

	var notifier notify.Notifier = notify.Noop{}
	tgToken := viper.GetString("telegram.token")
	tgChat := viper.GetString("telegram.chat-id")
	if tgToken != "" && tgChat != "" {
		notifier = notify.NewTelegram(tgToken, tgChat)
	} else if command.Mutating() {
		logging.Logger(nil).Warn("no notification channel configured, outcome will only be logged")
	}

	tz := viper.GetString("run.timezone")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return errors.Wrapf(err, "loading timezone %q", tz)
	}

	r := runner.New(api, notifier).
		WithForce(viper.GetBool("run.force")).
		WithAttempts(viper.GetInt("run.attempts")).
		WithRetryDelay(viper.GetDuration("run.retry-delay")).
		WithLocation(loc)

	result, err := r.Run(command)
	if err != nil {
		return err
	}

	if result.Skipped {
		logging.Logger(nil).Infof("%s skipped: %s", result.Command, result.SkipReason)
	}

	return nil
}
