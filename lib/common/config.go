package common

import (
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"
)

const (
	// DefaultSpineSize is the number of nids held by one spine file
	DefaultSpineSize = 10240

	// NoPathOriginPattern disables reading path origins from semantics
	NoPathOriginPattern int32 = math.MinInt32
)

// --------------------------------------------------------------------------
// Store configuration struct
// --------------------------------------------------------------------------

// StoreConfig holds all configuration parameters for one store directory.
type StoreConfig struct {
	// DataDir is the root directory of the store (one sub-directory per spined map)
	DataDir string

	// SpineSize is the number of slots per spine file
	SpineSize int

	// Workers is the size of the shared worker pool used for scans, saves and index rebuilds
	Workers int

	// FlushInterval is how long a spine may stay dirty before the background
	// flusher writes it (0 = only flush on Save)
	FlushInterval time.Duration

	// CompressSpines enables zstd compression of spine files
	CompressSpines bool

	// PathOriginPatternNid is the pattern whose semantics carry path origins
	PathOriginPatternNid int32

	// JournalFile is the change-set journal written on every merge ("" = disabled)
	JournalFile string

	// LogLevel is one of debug, info, warn, error
	LogLevel string
}

// DefaultStoreConfig returns a configuration for the given directory with default values
func DefaultStoreConfig(dataDir string) StoreConfig {
	return StoreConfig{
		DataDir:              dataDir,
		SpineSize:            DefaultSpineSize,
		Workers:              runtime.NumCPU(),
		FlushInterval:        0,
		CompressSpines:       false,
		PathOriginPatternNid: NoPathOriginPattern,
		LogLevel:             "info",
	}
}

// Validate checks the configuration for values the store cannot work with
func (c *StoreConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory must be set")
	}
	if c.SpineSize <= 0 {
		return fmt.Errorf("spine size must be positive, got %d", c.SpineSize)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *StoreConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Spine Size", fmt.Sprintf("%d nids", c.SpineSize))
	addField("Compress Spines", fmt.Sprintf("%t", c.CompressSpines))
	if c.FlushInterval > 0 {
		addField("Flush Interval", c.FlushInterval.String())
	} else {
		addField("Flush Interval", "on save only")
	}

	addSection("Workers")
	addField("Pool Size", fmt.Sprintf("%d", c.Workers))

	addSection("Versioning")
	if c.PathOriginPatternNid == NoPathOriginPattern {
		addField("Path Origin Pattern", "disabled")
	} else {
		addField("Path Origin Pattern", fmt.Sprintf("%d", c.PathOriginPatternNid))
	}
	if c.JournalFile != "" {
		addField("Journal", c.JournalFile)
	} else {
		addField("Journal", "disabled")
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
