package cfg

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsPopulatesViper(t *testing.T) {
	viper.Reset()
	flagSet := pflag.NewFlagSet("whenfs", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flagSet))

	require.NoError(t, flagSet.Parse([]string{
		"--mount", "/mnt/whenfs",
		"--secret", "client-secret.json",
		"--name", "my-files",
		"--calendar", "abc123",
		"--root-event", "event-9",
		"--block-size", "4096",
		"--read-only",
	}))

	require.Equal(t, "/mnt/whenfs", viper.GetString("mount"))
	require.Equal(t, "client-secret.json", viper.GetString("auth.secret-file"))
	require.Equal(t, "my-files", viper.GetString("volume.calendar-name"))
	require.Equal(t, "abc123", viper.GetString("volume.calendar-id"))
	require.Equal(t, "event-9", viper.GetString("volume.root-event"))
	require.Equal(t, 4096, viper.GetInt("volume.block-size-bytes"))
	require.True(t, viper.GetBool("file-system.read-only"))

	var cfg Config
	require.NoError(t, viper.Unmarshal(&cfg))
	require.Equal(t, "/mnt/whenfs", cfg.Mount)
	require.Equal(t, "client-secret.json", cfg.Auth.SecretFile)
	require.Equal(t, "my-files", cfg.Volume.CalendarName)
	require.Equal(t, "abc123", cfg.Volume.CalendarID)
	require.Equal(t, "event-9", cfg.Volume.RootEvent)
	require.Equal(t, 4096, cfg.Volume.BlockSizeBytes)
	require.True(t, cfg.FileSystem.ReadOnly)
}

func TestBindFlagsDefaults(t *testing.T) {
	viper.Reset()
	flagSet := pflag.NewFlagSet("whenfs", pflag.ContinueOnError)
	require.NoError(t, BindFlags(flagSet))
	require.NoError(t, flagSet.Parse(nil))

	require.Equal(t, "whenfs", viper.GetString("volume.calendar-name"))
	require.Equal(t, 1024, viper.GetInt("volume.block-size-bytes"))
	require.Equal(t, "INFO", viper.GetString("logging.severity"))
	require.False(t, viper.GetBool("file-system.read-only"))
}
