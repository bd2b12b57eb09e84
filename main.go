package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/mafiadial/mafia-night-server/core"
	"github.com/mafiadial/mafia-night-server/model"
)

var (
	version  = "dev"
	revision = "none"
	build    = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}
	configPath := flag.String("c", "./config/default.yml", "path to the config file")
	flag.Parse()

	core.SetVersion(version, revision, build)
	config, err := model.LoadFromPath(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	server, err := core.NewServer(*config)
	if err != nil {
		slog.Error("failed to initialize server", "error", err)
		os.Exit(1)
	}
	if err := server.Run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}
