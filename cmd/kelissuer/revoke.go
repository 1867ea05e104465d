package main

import (
	"github.com/spf13/cobra"

	"github.com/karasz/kelissuer/internal/model"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke [message]",
	Short: "Revoke a previously issued credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, c, _, err := openDispatcher()
		if err != nil {
			return err
		}
		defer d.Stop()
		defer c.Close()

		digest := model.DeriveDefault([]byte(args[0]))
		_, err = await(d.PushRevoke(digest))
		return err
	},
}
