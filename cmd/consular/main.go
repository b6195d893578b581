package main

import (
	"log"
	"os"

	"github.com/mitchellh/cli"

	"github.com/smn/consular/version"
)

func main() {
	c := cli.NewCLI("consular", version.GetHumanVersion())
	c.Args = os.Args[1:]
	c.Commands = Commands

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}
	os.Exit(exitStatus)
}
