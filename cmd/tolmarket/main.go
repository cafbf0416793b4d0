// Command tolmarket runs a marketplace node and talks to one.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"
)

type metadata struct {
	w io.Writer
	e io.Writer
}

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero"

func main() {
	app := cli.NewApp()
	app.Name = "tolmarket"
	app.Usage = "marketplace node and client"
	app.Version = version

	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "config.json",
			Usage: " node config `FILE`",
		},
		cli.StringFlag{
			Name:  "key, k",
			Value: "validator.key",
			Usage: " keystore `FILE`; password is read from TOL_PASSWORD",
		},
		cli.StringFlag{
			Name:  "rpc, r",
			Value: "http://127.0.0.1:8545",
			Usage: " node RPC `URL`",
		},
		cli.StringFlag{
			Name:   "token, t",
			Value:  "",
			Usage:  " RPC bearer `TOKEN`",
			EnvVar: "TOL_RPC_TOKEN",
		},
		cli.StringFlag{
			Name:  "chain",
			Value: "tolmarket-dev",
			Usage: " chain `ID` to sign transactions for",
		},
		cli.Uint64Flag{
			Name:  "txfee",
			Value: 0,
			Usage: " transaction fee `AMOUNT`",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "genkey",
			Usage:  "generate a key pair and save it to the keystore",
			Action: runGenKey,
		},
		{
			Name:   "node",
			Usage:  "run a validator node",
			Action: runNode,
		},
		{
			Name:  "deploy",
			Usage: "deploy the marketplace with the signer as admin",
			Flags: []cli.Flag{
				cli.Uint64Flag{Name: "fee, f", Usage: "*platform fee `PERCENT` (0-100)"},
			},
			Action: runDeploy,
		},
		{
			Name:  "list",
			Usage: "list an item for sale",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "name, n", Usage: "*item `NAME`"},
				cli.StringFlag{Name: "description, d", Usage: " item `TEXT`"},
				cli.Uint64Flag{Name: "price, p", Usage: "*unit `PRICE`"},
				cli.Uint64Flag{Name: "quantity, q", Usage: "*`UNITS` for sale"},
				cli.StringFlag{Name: "category", Usage: " `CATEGORY` tag, up to 32 bytes"},
			},
			Action: runList,
		},
		{
			Name:  "update",
			Usage: "replace the details of an item you listed",
			Flags: []cli.Flag{
				cli.Uint64Flag{Name: "id", Usage: "*item `ID`"},
				cli.StringFlag{Name: "name, n", Usage: "*item `NAME`"},
				cli.StringFlag{Name: "description, d", Usage: " item `TEXT`"},
				cli.Uint64Flag{Name: "price, p", Usage: "*unit `PRICE`"},
				cli.Uint64Flag{Name: "quantity, q", Usage: "*`UNITS` for sale"},
			},
			Action: runUpdate,
		},
		{
			Name:  "delete",
			Usage: "withdraw an item you listed from sale",
			Flags: []cli.Flag{
				cli.Uint64Flag{Name: "id", Usage: "*item `ID`"},
			},
			Action: runDelete,
		},
		{
			Name:  "buy",
			Usage: "buy units of an item",
			Flags: []cli.Flag{
				cli.Uint64Flag{Name: "id", Usage: "*item `ID`"},
				cli.Uint64Flag{Name: "quantity, q", Value: 1, Usage: " `UNITS` to buy"},
				cli.Uint64Flag{Name: "payment", Usage: " `AMOUNT` to send; defaults to price x quantity"},
			},
			Action: runBuy,
		},
		{
			Name:  "fee",
			Usage: "set the platform fee (admin)",
			Flags: []cli.Flag{
				cli.Uint64Flag{Name: "percent, p", Usage: "*fee `PERCENT` (0-100)"},
			},
			Action: runSetFee,
		},
		{
			Name:   "withdraw",
			Usage:  "withdraw accrued platform fees (admin)",
			Action: runWithdraw,
		},
		{
			Name:  "transfer-admin",
			Usage: "hand marketplace administration to another key (admin)",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "to", Usage: "*new admin public `KEY`"},
			},
			Action: runTransferAdmin,
		},
		{
			Name:  "transfer",
			Usage: "send native value to another account",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "to", Usage: "*recipient public `KEY`"},
				cli.Uint64Flag{Name: "amount, a", Usage: "*`AMOUNT` to send"},
			},
			Action: runTransfer,
		},
		{
			Name:  "item",
			Usage: "show an item",
			Flags: []cli.Flag{
				cli.Uint64Flag{Name: "id", Usage: "*item `ID`"},
			},
			Action: runItem,
		},
		{
			Name:   "report",
			Usage:  "show marketplace-wide sales totals",
			Action: runReport,
		},
		{
			Name:  "stats",
			Usage: "show a seller's counters",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "seller, s", Usage: " seller public `KEY`; defaults to own key"},
			},
			Action: runStats,
		},
		{
			Name:  "status",
			Usage: "show whether a transaction was applied",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "tx", Usage: "*transaction `ID`"},
			},
			Action: runStatus,
		},
	}

	app.Before = func(c *cli.Context) error {
		c.App.Metadata = map[string]interface{}{
			"config": &metadata{w: c.App.Writer, e: c.App.ErrWriter},
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}
