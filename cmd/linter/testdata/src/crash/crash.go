package crash

import (
	"log"
	"os"
)

func Sample(ok bool) {
	if !ok {
		panic("sample failed") // want "found usage of panic"
	}
	log.Fatal("unreachable") // want "found usage of log.Fatal outside of main function"
	log.Panicf("bad %d", 1)  // want "found usage of log.Panicf"
	os.Exit(1)               // want "found usage of os.Exit outside of main function"
}

func main() {
	os.Exit(2) // want "found usage of os.Exit outside of main function"
}
