package main

import (
	"fmt"
	"os"

	"github.com/latticekv/cbcore/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cbcore",
	Short: "cbcore - a cluster-aware Couchbase data-path client",
	Long: `cbcore talks directly to a Couchbase cluster's data and
management services: it tracks cluster topology, routes key/value
operations to the owning node, and dispatches query/search/analytics
requests across the cluster's HTTP services.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("cbcore version %s\ncommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().StringSlice("server", nil, "Bootstrap server URL (repeatable, overrides config)")
	rootCmd.PersistentFlags().String("bucket", "default", "Bucket name to operate against")
	rootCmd.PersistentFlags().String("username", "", "Accepted but unused: connections authenticate with the bucket name as the SASL username")
	rootCmd.PersistentFlags().String("password", "", "Bucket/cluster password")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(nodesCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
