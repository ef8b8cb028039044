package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/ltzehan/thermobot/core/cmd"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env loaded: %v", err)
	}

	if err := cmd.Run(cmd.Options{DefaultConfigPath: "config.yaml"}); err != nil {
		log.Fatal(err)
	}
}
