// Command whenfs mounts a Google Calendar as a local FUSE filesystem.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lvkv/whenfs/cfg"
	"github.com/lvkv/whenfs/common"
	"github.com/lvkv/whenfs/internal/auth"
	"github.com/lvkv/whenfs/internal/cache"
	"github.com/lvkv/whenfs/internal/clock"
	"github.com/lvkv/whenfs/internal/fsadapter"
	"github.com/lvkv/whenfs/internal/logger"
	"github.com/lvkv/whenfs/internal/storage"
)

// Exit codes, per the CLI contract: 0 clean unmount, 1 argument error,
// 2 authentication failure, 3 mount failure, 4 unrecoverable runtime
// error.
const (
	exitOK = iota
	exitArgError
	exitAuthFailure
	exitMountFailure
	exitRuntimeError
)

var mountConfig cfg.Config

var rootCmd = &cobra.Command{
	Use:   "whenfs",
	Short: "Mount a Google Calendar as a local filesystem.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return unmarshalAndRun()
	},
}

func unmarshalAndRun() error {
	if err := viper.Unmarshal(&mountConfig); err != nil {
		os.Exit(exitArgError)
	}
	if mountConfig.Mount == "" {
		fmt.Fprintln(os.Stderr, "whenfs: --mount is required")
		os.Exit(exitArgError)
	}
	if mountConfig.Auth.SecretFile == "" {
		fmt.Fprintln(os.Stderr, "whenfs: --secret is required")
		os.Exit(exitArgError)
	}

	run(context.Background())
	return nil
}

func run(ctx context.Context) {
	if err := logger.Init(logger.Config{
		File:     mountConfig.Logging.File,
		Format:   mountConfig.Logging.Format,
		Severity: mountConfig.Logging.Severity,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "whenfs: configuring logger: %v\n", err)
		os.Exit(exitArgError)
	}

	httpClient, err := auth.Client(ctx, mountConfig.Auth.SecretFile)
	if err != nil {
		logger.Errorf("authentication failed: %v", err)
		os.Exit(exitAuthFailure)
	}

	backend, err := openBackend(ctx, httpClient)
	if err != nil {
		logger.Errorf("opening storage backend: %v", err)
		os.Exit(exitAuthFailure)
	}

	c, err := openVolume(ctx, backend)
	if err != nil {
		logger.Errorf("opening volume: %v", err)
		os.Exit(exitMountFailure)
	}

	flushCtx, stopFlusher := context.WithCancel(ctx)
	flushInterval := time.Duration(mountConfig.Volume.FlushIntervalSeconds) * time.Second
	go c.Run(flushCtx, flushInterval)

	// shutdown stops the background flusher and drains whatever it left
	// dirty, in that order, however the mount ends.
	shutdown := common.JoinShutdownFunc(
		func(context.Context) error {
			stopFlusher()
			return nil
		},
		func(ctx context.Context) error {
			return c.Flush(ctx, cache.RootInodeID)
		},
	)

	options := make(map[string]string)
	if mountConfig.FileSystem.ReadOnly {
		options["ro"] = ""
	}

	server := fuseutil.NewFileSystemServer(fsadapter.New(c))
	mfs, err := fuse.Mount(mountConfig.Mount, server, &fuse.MountConfig{
		FSName:     "whenfs",
		Subtype:    "whenfs",
		VolumeName: mountConfig.Volume.CalendarName,
		Options:    options,
	})
	if err != nil {
		logger.Errorf("mount failed: %v", err)
		stopFlusher()
		os.Exit(exitMountFailure)
	}

	registerSignalHandler(mountConfig.Mount)

	if err := mfs.Join(ctx); err != nil {
		logger.Errorf("filesystem server exited with error: %v", err)
		shutdown(ctx)
		os.Exit(exitRuntimeError)
	}

	if err := shutdown(ctx); err != nil {
		logger.Errorf("final flush failed: %v", err)
		os.Exit(exitRuntimeError)
	}
	os.Exit(exitOK)
}

// openBackend resolves the calendar the volume lives on: an existing
// one named by --calendar, or a freshly created one named by --name.
func openBackend(ctx context.Context, httpClient *http.Client) (storage.Backend, error) {
	calendarID := mountConfig.Volume.CalendarID
	if calendarID == "" {
		bootstrap, err := storage.NewCalendarBackend(ctx, httpClient, "primary")
		if err != nil {
			return nil, err
		}
		calendarID, err = bootstrap.CreateCalendar(ctx, mountConfig.Volume.CalendarName)
		if err != nil {
			return nil, err
		}
		logger.Infof("created calendar %q for new volume", calendarID)
	}

	backend, err := storage.NewCalendarBackend(ctx, httpClient, calendarID)
	if err != nil {
		return nil, err
	}
	return storage.WithRetry(backend, storage.DefaultRetryPolicy()), nil
}

// openVolume mounts an existing volume when --root-event names one, or
// formats a brand-new one otherwise.
func openVolume(ctx context.Context, backend storage.Backend) (*cache.Cache, error) {
	if mountConfig.Volume.RootEvent != "" {
		return cache.Mount(ctx, backend, mountConfig.Volume.RootEvent)
	}
	return cache.New(backend, clock.RealClock{}, mountConfig.Volume.BlockSizeBytes), nil
}

func registerSignalHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		for range signalChan {
			logger.Infof("received interrupt, attempting to unmount %s", mountPoint)
			if err := fuse.Unmount(mountPoint); err != nil {
				logger.Errorf("unmount failed: %v", err)
				continue
			}
			return
		}
	}()
}

func Execute() {
	if err := cfg.BindFlags(rootCmd.Flags()); err != nil {
		fmt.Fprintf(os.Stderr, "whenfs: binding flags: %v\n", err)
		os.Exit(exitArgError)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitArgError)
	}
}

func main() {
	Execute()
}
