package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aurachat/aura/internal/profile"
	"github.com/aurachat/aura/server"
	"github.com/aurachat/aura/server/ai"
	"github.com/aurachat/aura/store"
	"github.com/aurachat/aura/store/db"
)

const greetingBanner = `aura - multimodal chat service`

var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "A streaming multimodal chat service",
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:        viper.GetString("mode"),
			Addr:        viper.GetString("addr"),
			Port:        viper.GetInt("port"),
			Data:        viper.GetString("data"),
			Driver:      viper.GetString("driver"),
			DSN:         viper.GetString("dsn"),
			InstanceURL: viper.GetString("instance-url"),
			Secret:      viper.GetString("secret"),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			slog.Error("invalid profile", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			os.Exit(1)
		}

		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate db", "error", err)
			os.Exit(1)
		}

		generator, err := ai.NewProvider(&ai.Config{
			BaseURL: instanceProfile.OpenAIBaseURL,
			APIKey:  instanceProfile.OpenAIAPIKey,
		})
		if err != nil {
			slog.Error("failed to create generator", "error", err)
			os.Exit(1)
		}

		s, err := server.NewServer(ctx, instanceProfile, storeInstance, generator)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			os.Exit(1)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigCh
			slog.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		}()

		fmt.Printf("%s\nversion %s, mode %s, listening on %s:%d\n",
			greetingBanner, instanceProfile.Version, instanceProfile.Mode,
			instanceProfile.Addr, instanceProfile.Port)

		if err := s.Start(ctx); err != nil {
			slog.Error("server exited with error", "error", err)
			os.Exit(1)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "demo", `mode of the server, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of the server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of the server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name")
	rootCmd.PersistentFlags().String("instance-url", "", "public url of this instance")
	rootCmd.PersistentFlags().String("secret", "", "secret used to sign session tokens")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn", "instance-url", "secret"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("aura")
	viper.AutomaticEnv()
}
