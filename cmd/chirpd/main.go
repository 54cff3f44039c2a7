package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"

	"github.com/chirpsocial/chirp/internal/engine"
)

func main() {
	userFlag := flag.String("user", "", "local user id")
	tokenFlag := flag.String("token", "", "session token (defaults to $CHIRP_TOKEN)")
	configFlag := flag.String("config", "", "config file path")
	flag.Parse()

	if *userFlag == "" {
		fmt.Fprintln(os.Stderr, "error: -user is required")
		os.Exit(1)
	}

	token := *tokenFlag
	if token == "" {
		token = os.Getenv("CHIRP_TOKEN")
	}

	configPath := *configFlag
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(home, ".chirp", "config.toml")
	}

	app := fx.New(
		engine.Module(engine.Params{
			UserID:     *userFlag,
			Token:      token,
			ConfigPath: configPath,
		}),
	)

	app.Run()
}
