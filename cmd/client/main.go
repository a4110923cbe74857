package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/rideauth/internal/client/cli"
	"github.com/dmitrijs2005/rideauth/internal/client/config"
)

func main() {
	args := os.Args[1:]

	cfg := config.LoadConfig(args)
	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(context.Background(), args); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}
}
