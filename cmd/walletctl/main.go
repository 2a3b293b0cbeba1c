package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var version = "dev"

var (
	configFlag = cli.StringFlag{
		Name:    "config",
		Usage:   "path to a config file (defaults to ./config.yaml)",
		EnvVars: []string{"W3O_CONFIG"},
	}
	yesFlag = cli.BoolFlag{
		Name:  "yes",
		Usage: "skip interactive confirmations",
	}
)

func main() {
	app := cli.NewApp()

	app.Version = version
	app.Name = "walletctl"
	app.Usage = "Drive positions, tokens, NFTs and invoice payments from a local key"
	app.Flags = []cli.Flag{&configFlag, &yesFlag, &apiTokenFlag, &metricsTextfileFlag}
	app.Before = setupMetrics
	app.After = flushMetrics
	app.Commands = append(
		app.Commands,
		&snapshotCommand,
		&sanitizeCommand,
		&wrapCommand,
		&approveCommand,
		&depositCommand,
		&depositMintCommand,
		&mintCommand,
		&repayCommand,
		&redeemCommand,
		&transferCommand,
		&mintNFTCommand,
		&galleryCommand,
		&invoiceCreateCommand,
		&payCommand,
		&verifyCommand,
	)

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}
