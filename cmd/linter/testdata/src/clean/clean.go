package clean

import (
	"errors"
	"log"
)

type logger struct{}

// Fatal is a method, not the log package function.
func (logger) Fatal(string) {}

func panic(string) {}

func Run() error {
	var l logger
	l.Fatal("fine")
	panic("shadowed builtin")
	log.Println("fine")
	return errors.New("returned, not raised")
}
