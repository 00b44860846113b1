package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Fetch a document by key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		res := sess.bucket.Get(context.Background(), []byte(args[0]))
		if !res.Success {
			return fmt.Errorf("get %q: %w", args[0], res.Err)
		}
		fmt.Printf("cas=%d node=%s\n%s\n", res.CAS, res.Node, res.Value)
		return nil
	},
}
