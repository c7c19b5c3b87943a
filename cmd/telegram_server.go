package cmd

import (
	"log/slog"
	"os"
	"os/signal"

	telebot "github.com/odit-bit/rcaccelerator/tgbot"
	"github.com/spf13/cobra"
	tele "gopkg.in/telebot.v4"
)

func init() {
	TeleCMD.Flags().Bool("prod", false, "deployment tags")
}

var TeleCMD = cobra.Command{
	Use:   "bot",
	Short: "telegram front-end of the rca server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		// rca backend
		ai, cfg, err := newClient(cmd)
		if err != nil {
			return err
		}

		botConfig := telebot.NewBotConfig(cfg.Telegram)
		if isProd, _ := cmd.Flags().GetBool("prod"); isProd {
			botConfig.IsProd = true
		}
		if botConfig.IsProd {
			slog.Info("Deployment", "is_production", botConfig.IsProd)
			slog.SetLogLoggerLevel(slog.LevelError)
		} else {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}

		//bot
		setting := tele.Settings{
			Token:  botConfig.Key,
			Poller: &tele.LongPoller{Timeout: botConfig.Timeout},
		}
		bot, err := tele.NewBot(setting)
		if err != nil {
			slog.Error("failed create bot", "error", err)
			return err
		}

		telebot.Handle(ctx, bot, ai, telebot.NewCache())

		srvErr := make(chan error, 1)
		go func() {
			bot.Start()
			_, err := bot.Close()
			srvErr <- err
		}()

		select {
		case err = <-srvErr:
			return err
		case <-ctx.Done():
			stop()
		}

		bot.Stop()
		return nil
	},
}
