package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wfunc/undercover/config"
	"github.com/wfunc/undercover/logger"
	"github.com/wfunc/undercover/monitor"
	"github.com/wfunc/undercover/persistence"
	"github.com/wfunc/undercover/server"
	"github.com/wfunc/undercover/services"
)

const releaseVersion = "0.3.0"

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"http-address":  "server.http_address",
	"rpc-address":   "server.rpc_address",
	"public-url":    "server.public_url",
	"archive":       "archive.driver",
	"log-level":     "log.level",
	"log-dev":       "log.development",
	"room-idle-ttl": "game.room_idle_timeout",
}

func newCmd() *cobra.Command {
	v := config.New()
	var configPath, envFile string

	cmd := &cobra.Command{
		Use:           "undercover",
		Short:         "Realtime server for the party game Who Is Undercover.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&configPath, "config", "c", ".", "directory holding config.yaml")
	fs.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading config")
	fs.StringP("http-address", "b", ":8080", "websocket and HTTP listen address (env: UNDERCOVER_SERVER_HTTP_ADDRESS)")
	fs.String("rpc-address", ":8081", "net/rpc admin listen address, empty disables (env: UNDERCOVER_SERVER_RPC_ADDRESS)")
	fs.String("public-url", "http://localhost:8080", "base URL encoded in room QR codes (env: UNDERCOVER_SERVER_PUBLIC_URL)")
	fs.String("archive", "memory", "game archive driver: memory, gorm or postgres (env: UNDERCOVER_ARCHIVE_DRIVER)")
	fs.String("log-level", "info", "debug, info, warn or error (env: UNDERCOVER_LOG_LEVEL)")
	fs.Bool("log-dev", false, "human readable development logging (env: UNDERCOVER_LOG_DEVELOPMENT)")
	fs.Duration("room-idle-ttl", 0, "idle time before an empty room is swept (env: UNDERCOVER_GAME_ROOM_IDLE_TIMEOUT)")

	bindFlags(v, fs)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("undercover v{{.Version}}\n")

	return cmd
}

// bindFlags 只有显式传入的 flag 才覆盖配置文件和环境变量
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		_ = v.BindPFlag(key, f)
	})
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	archive, err := persistence.Open(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()
	logger.Log.Infow("archive ready", "driver", cfg.Archive.Driver)

	mon := monitor.NewMonitor("undercover")
	rooms, err := services.NewRoomManager(cfg.Game, mon)
	if err != nil {
		return err
	}
	game := services.NewGameService(rooms, cfg.Game, archive, mon)

	gameServer, err := server.NewGameServer(cfg, game, mon)
	if err != nil {
		return err
	}
	return gameServer.Start(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
