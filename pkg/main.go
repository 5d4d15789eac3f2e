package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := Setup()
	if err != nil {
		log.Fatalf("main start failed %v", err)
		return
	}

	if err := server.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
