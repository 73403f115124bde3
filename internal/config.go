package internal

import (
	"fmt"
	"time"
)

type Config struct {
	ConnectionBufferSize      int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	ReceiptWorkers            int           `env:"RECEIPT_WORKERS,required=true"`
	ModerationCharReplacement string        `env:"MODERATION_CHARACTER_REPLACEMENT,required=true"`
	CensoredWordsFile         string        `env:"CENSORED_WORDS_FILE"`
	LimitMessages             *int          `env:"LIMIT_MESSAGES"`
	RestartInterval           time.Duration `env:"RESTART_INTERVAL,required=true"`
	HealthInterval            time.Duration `env:"HEALTH_INTERVAL,required=true"`
	AuthTokenDuration         time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`
	AuthSecret                string        `env:"AUTH_SECRET"`
	Seed                      bool          `env:"CHAT_SEED,default=false"`
	StoreKind                 string        `env:"STORE_KIND,default=badger"`
	BadgerFilepath            string        `env:"BADGER_FILEPATH"`
	PostgresDSN               string        `env:"POSTGRES_DSN"`
	LogLevel                  string        `env:"LOG_LEVEL,required=true"`
	Host                      string        `env:"HOST,default=localhost"`
	Port                      int           `env:"PORT,default=8080"`
}

// CharacterRune converts the single-character replacement setting.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
