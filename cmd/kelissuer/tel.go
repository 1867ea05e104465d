package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/karasz/kelissuer/internal/model"
)

var telCmd = &cobra.Command{
	Use:   "tel [message]",
	Short: "Print the transaction event log for a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, c, _, err := openDispatcher()
		if err != nil {
			return err
		}
		defer d.Stop()
		defer c.Close()

		digest := model.DeriveDefault([]byte(args[0]))
		res, err := await(d.PushGetTEL(digest))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(res.Payload)
		return err
	},
}
