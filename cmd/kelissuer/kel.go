package main

import (
	"os"

	"github.com/spf13/cobra"
)

var kelCmd = &cobra.Command{
	Use:   "kel",
	Short: "Print the controller's own key event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, c, _, err := openDispatcher()
		if err != nil {
			return err
		}
		defer d.Stop()
		defer c.Close()

		res, err := await(d.PushGetKEL())
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(res.Payload)
		return err
	},
}
