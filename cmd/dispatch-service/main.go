package main

import (
	"log"
	_ "time/tzdata" // agent shifts name IANA zones

	"github.com/psds-microservice/dispatch-service/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
