package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Deepaks31/Workflow-Automation-Engine/internal/cli"
)

var rootCmd = &cobra.Command{Use: "wae"}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
