package main

import (
	"log"
	"os"
)

var exitCode = func() int {
	os.Exit(4) // want "found usage of os.Exit outside of main function"
	return 0
}()

var logged = log.Flags()

func init() {
	if exitCode != 0 || logged < 0 {
		log.Fatal("bad init") // want "found usage of log.Fatal outside of main function"
	}
}
