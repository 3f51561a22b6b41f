package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/twitchtv/twitch-native-ipc/pkg/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, os.Args); err != nil {
		logger := log.NewColorLogger(log.Config{})
		logger.Error(err.Error())
		os.Exit(1)
	}
}
