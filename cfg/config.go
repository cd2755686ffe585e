// Package cfg defines WhenFS's configuration surface and binds it to
// cobra flags through viper, the way the teacher's own cfg package
// binds gcsfuse's much larger flag set.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every setting a WhenFS mount needs, populated by viper
// from command-line flags before the mount begins. No config file is
// read.
type Config struct {
	Mount      string `yaml:"mount" mapstructure:"mount"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Volume     VolumeConfig     `yaml:"volume" mapstructure:"volume"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	FileSystem FileSystemConfig `yaml:"file-system" mapstructure:"file-system"`
}

type AuthConfig struct {
	// Path to the downloaded OAuth client-secret JSON for the Calendar API.
	SecretFile string `yaml:"secret-file" mapstructure:"secret-file"`
}

type VolumeConfig struct {
	// CalendarName is the display name of the calendar backing a brand new
	// volume. Ignored when CalendarID names an existing calendar.
	CalendarName string `yaml:"calendar-name" mapstructure:"calendar-name"`

	// CalendarID is an existing calendar to mount against; empty creates a
	// new calendar named CalendarName.
	CalendarID string `yaml:"calendar-id" mapstructure:"calendar-id"`

	// RootEvent identifies an existing volume's root record, so a second
	// mount on the same calendar resumes rather than reformats it.
	RootEvent string `yaml:"root-event" mapstructure:"root-event"`

	// BlockSizeBytes sizes new file blocks. Only meaningful when creating a
	// volume; an existing volume's block size is read back from its root
	// record.
	BlockSizeBytes int `yaml:"block-size-bytes" mapstructure:"block-size-bytes"`

	// FlushIntervalSeconds is how often the object cache drains its dirty
	// queue in the background.
	FlushIntervalSeconds int `yaml:"flush-interval-seconds" mapstructure:"flush-interval-seconds"`
}

type LoggingConfig struct {
	File     string `yaml:"file" mapstructure:"file"`
	Format   string `yaml:"format" mapstructure:"format"`
	Severity string `yaml:"severity" mapstructure:"severity"`
}

type FileSystemConfig struct {
	// ReadOnly mounts the volume without permitting writes, handy for
	// inspecting a volume another mount owns.
	ReadOnly bool `yaml:"read-only" mapstructure:"read-only"`
}

// BindFlags registers every WhenFS flag on flagSet and binds it into
// viper under the same dotted key its yaml tag names, mirroring the
// teacher's generated BindFlags.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("mount", "m", "", "Filesystem mount point.")
	if err = viper.BindPFlag("mount", flagSet.Lookup("mount")); err != nil {
		return err
	}

	flagSet.StringP("secret", "s", "", "Path to the OAuth client-secret JSON downloaded from Google Cloud Console.")
	if err = viper.BindPFlag("auth.secret-file", flagSet.Lookup("secret")); err != nil {
		return err
	}

	flagSet.StringP("name", "n", "whenfs", "Display name for a newly created backing calendar.")
	if err = viper.BindPFlag("volume.calendar-name", flagSet.Lookup("name")); err != nil {
		return err
	}

	flagSet.String("calendar", "", "Existing calendar id to mount against; empty creates a new calendar.")
	if err = viper.BindPFlag("volume.calendar-id", flagSet.Lookup("calendar")); err != nil {
		return err
	}

	flagSet.String("root-event", "", "Root record id of an existing volume to mount; empty creates a new volume.")
	if err = viper.BindPFlag("volume.root-event", flagSet.Lookup("root-event")); err != nil {
		return err
	}

	flagSet.Int("block-size", 1024, "Block size in bytes for new files; ignored when mounting an existing volume.")
	if err = viper.BindPFlag("volume.block-size-bytes", flagSet.Lookup("block-size")); err != nil {
		return err
	}

	flagSet.Int("flush-interval", 2, "Seconds between background flushes of the dirty queue.")
	if err = viper.BindPFlag("volume.flush-interval-seconds", flagSet.Lookup("flush-interval")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to write logs to; empty logs to stderr.")
	if err = viper.BindPFlag("logging.file", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	flagSet.String("log-format", "text", "Log format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.String("log-severity", "INFO", "Minimum severity to log: TRACE, DEBUG, INFO, WARNING, ERROR.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.BoolP("read-only", "r", false, "Mount the volume read-only.")
	if err = viper.BindPFlag("file-system.read-only", flagSet.Lookup("read-only")); err != nil {
		return err
	}

	return nil
}
