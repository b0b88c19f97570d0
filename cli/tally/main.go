package main

import (
	"os"

	tallycmder "github.com/papercomputeco/tally/cmd/tally"
)

func main() {
	cmd := tallycmder.NewTallyCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
