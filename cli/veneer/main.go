package main

import (
	"os"

	veneercmder "github.com/papercomputeco/veneer/cmd/veneer"
)

func main() {
	cmd := veneercmder.NewVeneerCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
