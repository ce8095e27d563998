// Command authsim runs a stand-in combat authority for local development.
// It serves the poll endpoints and pushes generated events over /ws until
// interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbitfall/combatwatch/internal/authsim"
	"github.com/orbitfall/combatwatch/pkg/logger"
)

const emitInterval = 2 * time.Second

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get().Named("authsim")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := authsim.NewServer()
	defer sim.Close()

	log.Info(ctx, "authority simulator running",
		logger.String("url", sim.URL()),
		logger.String("push", sim.PushURL()),
	)

	sim.Run(ctx, emitInterval)
	log.Info(ctx, "authority simulator stopped")
}
