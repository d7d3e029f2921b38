package main

import (
	"fmt"
	"os"

	"github.com/unimarket/callmarket"
	"github.com/urfave/cli"
)

func fatal(err error) {
	_, _ = fmt.Fprintf(os.Stderr, "[callcli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()

	app.Version = callmarket.Version()
	app.Name = "callcli"
	app.Usage = "offline tooling for the callmarket clearing engine"
	app.Commands = []cli.Command{
		clearCommand,
		clearRangeCommand,
		validateBookCommand,
	}

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}
