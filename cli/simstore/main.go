package main

import (
	"os"

	simstorecmder "github.com/papercomputeco/simstore/cmd/simstore"
)

func main() {
	cmd := simstorecmder.NewSimstoreCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
