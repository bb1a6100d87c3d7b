package main

import (
	"fmt"
	"os"

	"github.com/cuongbtq/jobflow/cmd/jobctl/commands"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := commands.NewRootCmd(commands.DefaultEnv()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
