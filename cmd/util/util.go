package util

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/tks/lib/common"
	"github.com/ValentinKolb/tks/lib/store"
	"github.com/ValentinKolb/tks/lib/store/lstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the flags describing a store directory to a command
func SetupStoreFlags(cmd *cobra.Command) {
	defaults := common.DefaultStoreConfig("data")

	key := "data-dir"
	cmd.PersistentFlags().String(key, defaults.DataDir, WrapString("The data directory of the store"))

	key = "spine-size"
	cmd.PersistentFlags().Int(key, defaults.SpineSize, WrapString("Number of nids per spine file. Must match the value the store was created with"))

	key = "workers"
	cmd.PersistentFlags().Int(key, defaults.Workers, WrapString("Size of the worker pool used for scans, saves and index rebuilds"))

	key = "flush-interval"
	cmd.PersistentFlags().Duration(key, defaults.FlushInterval, WrapString("Write spines that have been dirty for longer than this in the background (0 = only on save)"))

	key = "compress"
	cmd.PersistentFlags().Bool(key, defaults.CompressSpines, WrapString("Compress spine files with zstd"))

	key = "path-origin-pattern"
	cmd.PersistentFlags().String(key, "", WrapString("Nid of the pattern whose semantics carry path origins (empty = disabled)"))

	key = "journal"
	cmd.PersistentFlags().String(key, "", WrapString("Append every write to this change-set journal (empty = disabled)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, defaults.LogLevel, WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig loads .env files and initializes viper
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("tks")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() (common.StoreConfig, error) {
	conf := common.DefaultStoreConfig(viper.GetString("data-dir"))
	conf.SpineSize = viper.GetInt("spine-size")
	conf.Workers = viper.GetInt("workers")
	conf.FlushInterval = viper.GetDuration("flush-interval")
	conf.CompressSpines = viper.GetBool("compress")
	conf.JournalFile = viper.GetString("journal")
	conf.LogLevel = viper.GetString("log-level")

	if pattern := viper.GetString("path-origin-pattern"); pattern != "" {
		nid, err := ParseNid(pattern)
		if err != nil {
			return conf, fmt.Errorf("invalid path origin pattern: %w", err)
		}
		conf.PathOriginPatternNid = nid
	}

	return conf, conf.Validate()
}

// OpenStore binds the flags of cmd, initializes the loggers and opens the configured store
func OpenStore(cmd *cobra.Command) (store.IStore, common.StoreConfig, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, common.StoreConfig{}, err
	}
	conf, err := GetStoreConfig()
	if err != nil {
		return nil, conf, err
	}
	if err := common.InitLoggers(conf); err != nil {
		return nil, conf, err
	}
	st, err := lstore.Open(conf)
	return st, conf, err
}

// ParseNid parses a decimal nid
func ParseNid(s string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("nid must be a 32 bit integer: %w", err)
	}
	return int32(n), nil
}

// ParseNids parses a comma-separated list of nids
func ParseNids(s string) ([]int32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var nids []int32
	for _, part := range strings.Split(s, ",") {
		nid, err := ParseNid(part)
		if err != nil {
			return nil, err
		}
		nids = append(nids, nid)
	}
	return nids, nil
}
