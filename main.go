package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/odit-bit/rcaccelerator/cmd"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed load .env", "error", err)
	}

	rootCMD := cobra.Command{
		Use:   "rca",
		Short: "RCAccelerator, root cause analysis of CI failures",
	}
	rootCMD.AddCommand(cmd.Commands()...)
	if err := rootCMD.Execute(); err != nil {
		os.Exit(1)
	}
}
