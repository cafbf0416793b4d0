package main

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/tolelom/tolmarket/wallet"
)

func runGenKey(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	w, err := wallet.Generate()
	if err != nil {
		return err
	}
	path := c.GlobalString("key")
	if err := wallet.SaveKey(path, password(m), w.PrivKey()); err != nil {
		return err
	}
	fmt.Fprintf(m.w, "public key: %s\n", w.PubKey())
	fmt.Fprintf(m.w, "saved to:   %s\n", path)
	return nil
}
