package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docchat/app/server"
	"docchat/types"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.NewServer(types.ConfigFromEnv()).Run(ctx); err != nil {
		log.Fatal(err)
	}
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatal("Error loading .env file: ", err)
	}
}
