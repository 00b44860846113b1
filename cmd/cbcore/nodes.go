package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the cluster's current node roster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession(cmd)
		if err != nil {
			return err
		}
		defer sess.Close()

		fmt.Printf("revision: %d\n", sess.view.Revision())
		for _, n := range sess.view.Nodes() {
			status := "up"
			if n.Down() {
				status = "down"
			}
			fmt.Printf("%-24s host=%-20s data_port=%-6d status=%s\n", n.Endpoint, n.Host, n.Ports.Data, status)
		}
		return nil
	},
}
