// Command animedb-supervisor restarts the animedb-node binary whenever it
// exits, per a JSON config describing one or more instances. This is the
// "process supervisor" the self-update flow depends on: a successful
// POST /system/update exits the node process, and this binary brings it
// back up to run checkRollback and resume serving.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/animedb/animedb-node/internal/supervisor"
)

func main() {
	configPath := flag.String("config", "supervisor.json", "path to the supervisor config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := supervisor.Run(ctx, *configPath); err != nil {
		log.Fatalf("supervisor: %v", err)
	}
}
