package main

import (
	"fmt"
	"log"
	"os"

	"gogreen/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		if _, err := fmt.Fprintf(os.Stderr, "wrong execute: %v\n", err); err != nil {
			log.Fatal(err)
		}
		os.Exit(1)
	}
}
