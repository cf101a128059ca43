package main

import (
	"log/slog"
	"os"

	"github.com/fftools/fastflash/cmd/fastflash/commands"
)

func main() {
	// Structured logger on stderr; stdout is reserved for command
	// output like getvar values and fetched partitions.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
