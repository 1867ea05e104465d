package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the controller's signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, c, km, err := openDispatcher()
		if err != nil {
			return err
		}
		defer d.Stop()
		defer c.Close()

		res, err := await(d.PushRotate())
		if err != nil {
			return err
		}
		sn, err := strconv.ParseUint(string(res.Payload), 10, 64)
		if err != nil {
			return fmt.Errorf("parse rotated sn: %w", err)
		}
		if err := km.Save(keyFilePath()); err != nil {
			return err
		}
		fmt.Printf("rotated to sn %d\n", sn)
		return nil
	},
}
