package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ashfaaq98/case-tracker/internal/backend"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	dbPath      string
	redisURL    string
	logLevel    string
	supabaseURL string
	sessionPath string
	themeName   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "case-tracker",
	Short: "Terminal case tracker with magic-link sign-in",
	Long: `Case Tracker keeps a list of legal cases with their court, parties and
hearing dates. Sign in with a one-time login link sent to your email, then
browse, search, add and edit cases from the terminal.

Cases live either in a hosted Supabase project (set supabase.url) or in a
local SQLite database.

Running case-tracker without a subcommand starts the TUI.`,
	RunE: runTUI,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.case-tracker.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/case-tracker.db", "SQLite database path for the local backend")
	rootCmd.PersistentFlags().StringVar(&supabaseURL, "supabase-url", "", "Supabase project URL (empty uses the local backend)")
	rootCmd.PersistentFlags().StringVar(&sessionPath, "session-file", "", "Where the signed-in session is kept (default is $HOME/.case-tracker/session.json)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL for change notifications (empty disables)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&themeName, "theme", "", "TUI theme (dark, light, high-contrast)")

	// Bind flags to viper
	viper.BindPFlag("local.db_path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("supabase.url", rootCmd.PersistentFlags().Lookup("supabase-url"))
	viper.BindPFlag("session.file", rootCmd.PersistentFlags().Lookup("session-file"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("ui.theme", rootCmd.PersistentFlags().Lookup("theme"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".case-tracker" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".case-tracker")
	}

	// CASE_TRACKER_SUPABASE_ANON_KEY and friends
	viper.SetEnvPrefix("case_tracker")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	// Set defaults
	viper.SetDefault("local.db_path", "./data/case-tracker.db")
	viper.SetDefault("local.link_ttl", backend.DefaultLinkTTL)
	viper.SetDefault("local.session_ttl", backend.DefaultSessionTTL)
	viper.SetDefault("session.file", defaultSessionFile())
	viper.SetDefault("log.level", "info")
	viper.SetDefault("ui.theme", "")
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".case-tracker", "session.json")
	}
	return filepath.Join(home, ".case-tracker", "session.json")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	session := viper.GetString("session.file")
	if session == "" {
		session = defaultSessionFile()
	}
	return Config{
		Supabase: SupabaseConfig{
			URL:        viper.GetString("supabase.url"),
			AnonKey:    viper.GetString("supabase.anon_key"),
			RedirectTo: viper.GetString("supabase.redirect_to"),
		},
		Local: LocalConfig{
			DBPath:     viper.GetString("local.db_path"),
			JWTSecret:  viper.GetString("local.jwt_secret"),
			OutboxDir:  viper.GetString("local.outbox_dir"),
			LinkTTL:    viper.GetDuration("local.link_ttl"),
			SessionTTL: viper.GetDuration("local.session_ttl"),
		},
		Session: SessionConfig{
			File: session,
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
		UI: UIConfig{
			Theme: viper.GetString("ui.theme"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Supabase SupabaseConfig `mapstructure:"supabase"`
	Local    LocalConfig    `mapstructure:"local"`
	Session  SessionConfig  `mapstructure:"session"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	UI       UIConfig       `mapstructure:"ui"`
}

type SupabaseConfig struct {
	URL        string `mapstructure:"url"`
	AnonKey    string `mapstructure:"anon_key"`
	RedirectTo string `mapstructure:"redirect_to"`
}

type LocalConfig struct {
	DBPath     string        `mapstructure:"db_path"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	OutboxDir  string        `mapstructure:"outbox_dir"`
	LinkTTL    time.Duration `mapstructure:"link_ttl"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type SessionConfig struct {
	File string `mapstructure:"file"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type UIConfig struct {
	Theme string `mapstructure:"theme"`
}

// Backend converts the configuration into backend settings.
func (c Config) Backend() backend.Config {
	return backend.Config{
		SupabaseURL:     c.Supabase.URL,
		SupabaseAnonKey: c.Supabase.AnonKey,
		RedirectTo:      c.Supabase.RedirectTo,
		DBPath:          c.Local.DBPath,
		JWTSecret:       c.Local.JWTSecret,
		OutboxDir:       c.Local.OutboxDir,
		LinkTTL:         c.Local.LinkTTL,
		SessionTTL:      c.Local.SessionTTL,
		SessionFile:     c.Session.File,
		RedisURL:        c.Redis.URL,
	}
}
