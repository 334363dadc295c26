// cmd/txncli is the CLI entry-point, built with Cobra, for submitting
// transaction strings (spec §6.2) to a running node.
//
// Usage:
//
//	txncli exec "b,w(49,53),r(49),c"          --node http://localhost:8081
//	txncli file transactions.txt               --node http://localhost:8081
//	txncli status                               --node http://localhost:8081
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"hierarchical-kvstore/internal/client"
	"hierarchical-kvstore/internal/txnparse"

	"github.com/spf13/cobra"
)

var (
	nodeAddr string
	timeout  time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "txncli",
		Short: "CLI client for submitting transaction strings to a node",
	}

	root.PersistentFlags().StringVarP(&nodeAddr, "node", "n",
		"http://localhost:8080", "node RPC address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"RPC request timeout")

	root.AddCommand(execCmd(), fileCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func execCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <transaction-string>",
		Short: "Parse and submit a single transaction string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submitLine(args[0])
		},
	}
}

func fileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "file <path>",
		Short: "Submit every transaction string in a file, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if err := submitLine(line); err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", line, err)
				}
			}
			return scanner.Err()
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print this node's identity, tier, and current data",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(nodeAddr, timeout)
			status, err := c.GetNodeStatus(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(status)
			return nil
		},
	}
}

func submitLine(line string) error {
	t, err := txnparse.Parse(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}

	c := client.New(nodeAddr, timeout)
	resp, err := c.ExecuteTransaction(context.Background(), t)
	if err != nil {
		return err
	}
	prettyPrint(resp)
	return nil
}

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
