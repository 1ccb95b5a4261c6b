package main

import (
	"log"
	"os"
)

func run() error {
	defer os.Exit(3)    // want "found usage of os.Exit outside of main function"
	log.Panicln("stop") // want "found usage of log.Panicln"
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
	log.Fatalln("done")
}

var _ = func() int {
	os.Exit(2) // want "found usage of os.Exit outside of main function"
	return 0
}()
