package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

type Config struct {
	Host      string `env:"HOST,default=0.0.0.0"`
	HTTPPort  int    `env:"HTTP_PORT,default=5000" validate:"gt=0,lt=65536"`
	GRPCPort  int    `env:"GRPC_PORT,default=5001" validate:"gt=0,lt=65536"`
	DebugPort int    `env:"DEBUG_PORT,default=8081" validate:"gt=0,lt=65536"`
	LogLevel  string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger" validate:"oneof=badger sqlite"`
	BadgerFilepath string `env:"BADGER_FILEPATH"`
	SQLitePath     string `env:"SQLITE_PATH,default=group-cart.db"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	SearchIndexPath  string `env:"SEARCH_INDEX_PATH"`
	DisableSearch    bool   `env:"DISABLE_SEARCH,default=false"`
	ProductsFile     string `env:"PRODUCTS_FILE"`
	CensoredWordsDir string `env:"CENSORED_WORDS_DIR"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	DefaultGroupID   string `env:"DEFAULT_GROUP_ID,default=global" validate:"required,max=128"`
	InviteBaseURL    string `env:"INVITE_BASE_URL,default=http://localhost:5173" validate:"required,url"`
	AllowedOrigins   string `env:"ALLOWED_ORIGINS"`
	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=4096" validate:"gt=0"`

	OutboxSize   int           `env:"OUTBOX_SIZE,default=64" validate:"gt=0"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gte=0"`
	MaxFrameSize int64         `env:"MAX_FRAME_SIZE,default=65536" validate:"gt=0"`
	EventRate    float64       `env:"EVENT_RATE,default=20" validate:"gte=0"`
	EventBurst   int           `env:"EVENT_BURST,default=40" validate:"gte=0"`

	MaintenanceCron string        `env:"MAINTENANCE_CRON,default=*/15 * * * *"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=2s" validate:"gt=0"`
	ReportInterval  time.Duration `env:"REPORT_INTERVAL,default=1m" validate:"gt=0"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

// Validate checks what go-env cannot express: ranges, enums and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.StoreDriver == StoreBadger && c.BadgerFilepath == "" {
		return fmt.Errorf("invalid config: BADGER_FILEPATH is required with the %s driver", StoreBadger)
	}
	if c.LimitMessages != nil && *c.LimitMessages <= 0 {
		return fmt.Errorf("invalid config: LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

func (c Config) HTTPAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort) }

func (c Config) GRPCAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort) }

// Origins splits ALLOWED_ORIGINS on commas.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
