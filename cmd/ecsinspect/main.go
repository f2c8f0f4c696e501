// Command ecsinspect builds worlds from YAML scenarios and runs query
// expressions against them.
package main

import (
	"log"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		log.SetFlags(0)
		log.Printf("ecsinspect: %v", err)
		os.Exit(1)
	}
}
