package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/spf13/pflag"

	"github.com/pv/gameserver-status-bot/internal/logger"
)

// ErrInvalid оборачивает все ошибки валидации конфигурации
var ErrInvalid = errors.New("invalid configuration")

type Source string

const (
	SourceA2S Source = "a2s"
	SourceFTP Source = "ftp"
)

type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageSQLite StorageType = "sqlite"
)

type DiscordConfig struct {
	Token        string `yaml:"token"`
	ChannelID    string `yaml:"channel_id"`
	ActivityType string `yaml:"activity_type"`
}

type A2SConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type FTPConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	FilePath     string `yaml:"file_path"`
	PlayersField string `yaml:"players_field"`
}

// PollConfig интервалы двух триггеров, в секундах
type PollConfig struct {
	StatusIntervalSeconds     int `yaml:"status_interval_seconds"`
	PlayerListIntervalSeconds int `yaml:"playerlist_interval_seconds"`
}

type DisplayConfig struct {
	MaxPlayers    int    `yaml:"max_players"`
	PresenceLabel string `yaml:"presence_label"`
	EmbedTitle    string `yaml:"embed_title"`
	Overflow      string `yaml:"overflow"`
}

type StateConfig struct {
	Storage StorageType `yaml:"storage"`
	Path    string      `yaml:"path"`
}

// HealthConfig HTTP с состоянием бота; пустой Addr - выключено
type HealthConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type Config struct {
	Discord DiscordConfig `yaml:"discord"`
	Source  Source        `yaml:"source"`
	A2S     A2SConfig     `yaml:"a2s"`
	FTP     FTPConfig     `yaml:"ftp"`
	Poll    PollConfig    `yaml:"poll"`
	Display DisplayConfig `yaml:"display"`
	State   StateConfig   `yaml:"state"`
	Log     LogConfig     `yaml:"log"`
	Health  HealthConfig  `yaml:"health"`

	// ConfigFile путь к YAML, если был задан
	ConfigFile string `yaml:"-"`
}

// Defaults значения по умолчанию
func Defaults() *Config {
	return &Config{
		Discord: DiscordConfig{ActivityType: "watching"},
		Source:  SourceA2S,
		A2S:     A2SConfig{Port: 2005, TimeoutSeconds: 5},
		FTP: FTPConfig{
			Port:         21,
			User:         "anonymous",
			FilePath:     "/profiles/ArmaReforgerServer/profile/ServerAdminTools_Stats.json",
			PlayersField: "connected_players",
		},
		Poll: PollConfig{StatusIntervalSeconds: 60, PlayerListIntervalSeconds: 120},
		Display: DisplayConfig{
			MaxPlayers:    64,
			PresenceLabel: "players",
			EmbedTitle:    "Players online",
			Overflow:      "truncate",
		},
		State: StateConfig{Storage: StorageSQLite, Path: "./data/state.db"},
		Log:   LogConfig{Format: "text", Level: "info"},
	}
}

// Parse собирает конфигурацию из аргументов командной строки и окружения процесса.
// Приоритет: значения по умолчанию < YAML (--config) < переменные окружения < флаги.
func Parse(args []string) (*Config, error) {
	return ParseWith(args, os.LookupEnv)
}

// ParseWith то же, что Parse, с явным источником переменных окружения
func ParseWith(args []string, lookup func(string) (string, bool)) (*Config, error) {
	// флаги пишутся в отдельную копию, в cfg переносятся только явно заданные
	fl := Defaults()
	fs := newFlagSet(fl)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Defaults()
	cfg.ConfigFile = fl.ConfigFile
	if cfg.ConfigFile == "" {
		if v, ok := lookup("CONFIG_FILE"); ok {
			cfg.ConfigFile = v
		}
	}

	if cfg.ConfigFile != "" {
		if err := LoadFromYAML(cfg.ConfigFile, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	fs.Visit(func(f *pflag.Flag) {
		applyFlag(cfg, fl, f.Name)
	})

	return cfg, nil
}

func newFlagSet(fl *Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("statusbot", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.StringVar(&fl.ConfigFile, "config", "", "YAML configuration file")

	fs.StringVar(&fl.Discord.Token, "discord-token", "", "Discord bot token")
	fs.StringVar(&fl.Discord.ChannelID, "channel-id", "", "Channel for the player list message")
	fs.StringVar(&fl.Discord.ActivityType, "activity-type", fl.Discord.ActivityType, "Presence activity: watching, playing, listening or competing")

	fs.StringVar((*string)(&fl.Source), "source", string(fl.Source), "Stats source: a2s or ftp")

	fs.StringVar(&fl.A2S.Host, "server-ip", "", "Game server address for A2S queries")
	fs.IntVar(&fl.A2S.Port, "server-port", fl.A2S.Port, "Game server query port")
	fs.IntVar(&fl.A2S.TimeoutSeconds, "query-timeout", fl.A2S.TimeoutSeconds, "A2S query timeout, seconds")

	fs.StringVar(&fl.FTP.Host, "ftp-host", "", "FTP host with the stats file")
	fs.IntVar(&fl.FTP.Port, "ftp-port", fl.FTP.Port, "FTP port")
	fs.StringVar(&fl.FTP.User, "ftp-user", fl.FTP.User, "FTP user")
	fs.StringVar(&fl.FTP.Password, "ftp-password", "", "FTP password")
	fs.StringVar(&fl.FTP.FilePath, "ftp-file", fl.FTP.FilePath, "Path to the stats JSON on the FTP server")
	fs.StringVar(&fl.FTP.PlayersField, "ftp-players-field", fl.FTP.PlayersField, "Field with connected players in the stats JSON")

	fs.IntVar(&fl.Poll.StatusIntervalSeconds, "status-interval", fl.Poll.StatusIntervalSeconds, "Presence update interval, seconds")
	fs.IntVar(&fl.Poll.PlayerListIntervalSeconds, "playerlist-interval", fl.Poll.PlayerListIntervalSeconds, "Player list update interval, seconds")

	fs.IntVar(&fl.Display.MaxPlayers, "max-players", fl.Display.MaxPlayers, "Slots shown when the server does not report them")
	fs.StringVar(&fl.Display.PresenceLabel, "presence-label", fl.Display.PresenceLabel, "Label after the player count")
	fs.StringVar(&fl.Display.EmbedTitle, "embed-title", fl.Display.EmbedTitle, "Player list message title")
	fs.StringVar(&fl.Display.Overflow, "overflow", fl.Display.Overflow, "Too many players: truncate or replace")

	fs.StringVar((*string)(&fl.State.Storage), "state-storage", string(fl.State.Storage), "State storage: memory or sqlite")
	fs.StringVar(&fl.State.Path, "state-path", fl.State.Path, "SQLite state database path")

	fs.StringVar(&fl.Log.Format, "log-format", fl.Log.Format, "Log format: text or json")
	fs.StringVar(&fl.Log.Level, "log-level", fl.Log.Level, "Log level: debug, info, warn or error")

	fs.StringVar(&fl.Health.Addr, "health-addr", "", "Listen address for /healthz and /api/status (empty disables)")

	return fs
}

func applyFlag(cfg, fl *Config, name string) {
	switch name {
	case "discord-token":
		cfg.Discord.Token = fl.Discord.Token
	case "channel-id":
		cfg.Discord.ChannelID = fl.Discord.ChannelID
	case "activity-type":
		cfg.Discord.ActivityType = fl.Discord.ActivityType
	case "source":
		cfg.Source = fl.Source
	case "server-ip":
		cfg.A2S.Host = fl.A2S.Host
	case "server-port":
		cfg.A2S.Port = fl.A2S.Port
	case "query-timeout":
		cfg.A2S.TimeoutSeconds = fl.A2S.TimeoutSeconds
	case "ftp-host":
		cfg.FTP.Host = fl.FTP.Host
	case "ftp-port":
		cfg.FTP.Port = fl.FTP.Port
	case "ftp-user":
		cfg.FTP.User = fl.FTP.User
	case "ftp-password":
		cfg.FTP.Password = fl.FTP.Password
	case "ftp-file":
		cfg.FTP.FilePath = fl.FTP.FilePath
	case "ftp-players-field":
		cfg.FTP.PlayersField = fl.FTP.PlayersField
	case "status-interval":
		cfg.Poll.StatusIntervalSeconds = fl.Poll.StatusIntervalSeconds
	case "playerlist-interval":
		cfg.Poll.PlayerListIntervalSeconds = fl.Poll.PlayerListIntervalSeconds
	case "max-players":
		cfg.Display.MaxPlayers = fl.Display.MaxPlayers
	case "presence-label":
		cfg.Display.PresenceLabel = fl.Display.PresenceLabel
	case "embed-title":
		cfg.Display.EmbedTitle = fl.Display.EmbedTitle
	case "overflow":
		cfg.Display.Overflow = fl.Display.Overflow
	case "state-storage":
		cfg.State.Storage = fl.State.Storage
	case "state-path":
		cfg.State.Path = fl.State.Path
	case "log-format":
		cfg.Log.Format = fl.Log.Format
	case "log-level":
		cfg.Log.Level = fl.Log.Level
	case "health-addr":
		cfg.Health.Addr = fl.Health.Addr
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) bool {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return false
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: not a number: %q", key, v))
			return false
		}
		*dst = n
		return true
	}

	str("DISCORD_TOKEN", &cfg.Discord.Token)
	str("CHANNEL_ID", &cfg.Discord.ChannelID)
	str("ACTIVITY_TYPE", &cfg.Discord.ActivityType)

	var source string
	str("STATS_SOURCE", &source)
	if source != "" {
		cfg.Source = Source(strings.ToLower(source))
	}

	str("SERVER_IP", &cfg.A2S.Host)
	num("SERVER_PORT", &cfg.A2S.Port)
	num("QUERY_TIMEOUT", &cfg.A2S.TimeoutSeconds)

	str("FTP_HOST", &cfg.FTP.Host)
	num("FTP_PORT", &cfg.FTP.Port)
	str("FTP_USER", &cfg.FTP.User)
	str("FTP_PASSWORD", &cfg.FTP.Password)
	str("FTP_FILE_PATH", &cfg.FTP.FilePath)
	str("FTP_PLAYERS_FIELD", &cfg.FTP.PlayersField)

	// UPDATE_INTERVAL старое имя интервала статуса
	if !num("STATUS_INTERVAL", &cfg.Poll.StatusIntervalSeconds) {
		num("UPDATE_INTERVAL", &cfg.Poll.StatusIntervalSeconds)
	}
	num("PLAYERLIST_INTERVAL", &cfg.Poll.PlayerListIntervalSeconds)

	num("MAX_PLAYERS", &cfg.Display.MaxPlayers)
	str("PRESENCE_LABEL", &cfg.Display.PresenceLabel)
	str("EMBED_TITLE", &cfg.Display.EmbedTitle)
	str("OVERFLOW_POLICY", &cfg.Display.Overflow)

	var storage string
	str("STATE_STORAGE", &storage)
	if storage != "" {
		cfg.State.Storage = StorageType(strings.ToLower(storage))
	}
	str("STATE_PATH", &cfg.State.Path)

	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("HEALTH_ADDR", &cfg.Health.Addr)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Validate проверяет конфигурацию целиком и сообщает обо всех проблемах сразу
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Discord.Token == "" {
		add("DISCORD_TOKEN is required")
	}
	if c.Discord.ChannelID == "" {
		add("CHANNEL_ID is required")
	} else if id, err := snowflake.Parse(c.Discord.ChannelID); err != nil || id == 0 {
		add("CHANNEL_ID %q is not a valid channel id", c.Discord.ChannelID)
	}

	switch c.Source {
	case SourceA2S:
		if c.A2S.Host == "" {
			add("SERVER_IP is required for the a2s source")
		}
		if c.A2S.Port <= 0 || c.A2S.Port > 65535 {
			add("SERVER_PORT %d out of range", c.A2S.Port)
		}
		if c.A2S.TimeoutSeconds <= 0 {
			add("QUERY_TIMEOUT must be positive")
		}
	case SourceFTP:
		if c.FTP.Host == "" {
			add("FTP_HOST is required for the ftp source")
		}
		if c.FTP.Port <= 0 || c.FTP.Port > 65535 {
			add("FTP_PORT %d out of range", c.FTP.Port)
		}
		if c.FTP.FilePath == "" {
			add("FTP_FILE_PATH is required for the ftp source")
		}
	default:
		add("unknown stats source %q (want a2s or ftp)", c.Source)
	}

	if c.Poll.StatusIntervalSeconds <= 0 {
		add("STATUS_INTERVAL must be positive")
	}
	if c.Poll.PlayerListIntervalSeconds <= 0 {
		add("PLAYERLIST_INTERVAL must be positive")
	}
	if c.Display.MaxPlayers < 0 {
		add("MAX_PLAYERS must not be negative")
	}
	switch c.Display.Overflow {
	case "truncate", "replace":
	default:
		add("unknown overflow policy %q (want truncate or replace)", c.Display.Overflow)
	}

	switch c.State.Storage {
	case StorageMemory:
	case StorageSQLite:
		if c.State.Path == "" {
			add("STATE_PATH is required for sqlite storage")
		}
	default:
		add("unknown state storage %q (want memory or sqlite)", c.State.Storage)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		add("unknown log format %q (want text or json)", c.Log.Format)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		add("%v", err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// ChannelID канал в виде snowflake; вызывать после Validate
func (c *Config) ChannelID() snowflake.ID {
	id, _ := snowflake.Parse(c.Discord.ChannelID)
	return id
}

func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Poll.StatusIntervalSeconds) * time.Second
}

func (c *Config) PlayerListInterval() time.Duration {
	return time.Duration(c.Poll.PlayerListIntervalSeconds) * time.Second
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.A2S.TimeoutSeconds) * time.Second
}
