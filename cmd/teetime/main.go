// Command teetime runs the TeeTime connections API and its maintenance tasks.
//
//	teetime serve
//	teetime migrate [up|status]
//	teetime seed <name>
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/teetime/backend/internal/app"
)

func main() {
	if err := app.Run(context.Background(), os.Args[1:]); err != nil {
		slog.Error("teetime exited", "command", os.Args[1:], "error", err)
		os.Exit(1)
	}
}
