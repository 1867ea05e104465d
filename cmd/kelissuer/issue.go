package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

var issueCmd = &cobra.Command{
	Use:   "issue [message]",
	Short: "Issue a credential and print its signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, c, _, err := openDispatcher()
		if err != nil {
			return err
		}
		defer d.Stop()
		defer c.Close()

		res, err := await(d.PushIssue([]byte(args[0])))
		if err != nil {
			return err
		}
		fmt.Println(base64.StdEncoding.EncodeToString(res.Payload))
		return nil
	},
}
