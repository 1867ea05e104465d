package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/karasz/kelissuer/internal/model"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [message] [signature-base64]",
	Short: "Verify a credential's signature against historical key state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, c, _, err := openDispatcher()
		if err != nil {
			return err
		}
		defer d.Stop()
		defer c.Close()

		raw, err := base64.StdEncoding.DecodeString(args[1])
		if err != nil {
			return fmt.Errorf("decode signature: %w", err)
		}
		sig := model.NewSignature(raw)

		res, err := await(d.PushVerify([]byte(args[0]), sig))
		if err != nil {
			return err
		}
		fmt.Println(len(res.Payload) == 1 && res.Payload[0] == 1)
		return nil
	},
}
