package main

import (
	"log/slog"
	"os"

	"aircrashes/internal/config"
)

func main() {
	Execute()
}

func setDefaultLogger(c *config.Config) {
	slog.SetDefault(c.Logger(os.Stderr))
}
