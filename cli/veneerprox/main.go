package main

import (
	"fmt"
	"os"

	servecmder "github.com/papercomputeco/veneer/cmd/veneer/serve"
)

func main() {
	cmd := servecmder.NewServeCmd()

	cmd.Use = "veneerprox"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .veneer/ config directory")

	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Error executing root command: %v\n", err)
		os.Exit(1)
	}
}
