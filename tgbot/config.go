package telebot

import (
	"os"
	"time"

	"github.com/odit-bit/rcaccelerator/rca/config"
)

const _default_poll_timeout = 10 * time.Second

type BotConfig struct {
	IsProd  bool
	Key     string
	Timeout time.Duration
}

// NewBotConfig takes the telegram section, the token falls back to TG_BOT_API_KEY.
func NewBotConfig(cfg config.TelegramConfig) BotConfig {
	bc := BotConfig{
		IsProd:  cfg.Production,
		Key:     cfg.Token,
		Timeout: cfg.PollTimeout,
	}
	if bc.Key == "" {
		bc.Key = GetBotTokenEnv()
	}
	if bc.Timeout <= 0 {
		bc.Timeout = _default_poll_timeout
	}
	return bc
}

func GetBotTokenEnv() string {
	return os.Getenv("TG_BOT_API_KEY")
}
