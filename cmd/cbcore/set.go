package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a document, unconditionally overwriting any existing value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		res := sess.bucket.Set(context.Background(), []byte(args[0]), []byte(args[1]))
		if !res.Success {
			return fmt.Errorf("set %q: %w", args[0], res.Err)
		}
		fmt.Printf("OK cas=%d node=%s\n", res.CAS, res.Node)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		res := sess.bucket.Delete(context.Background(), []byte(args[0]))
		if !res.Success {
			return fmt.Errorf("delete %q: %w", args[0], res.Err)
		}
		fmt.Printf("OK node=%s\n", res.Node)
		return nil
	},
}
