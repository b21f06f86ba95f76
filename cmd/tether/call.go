package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/aretw0/tether/internal/cli"
	"github.com/aretw0/tether/pkg/client"
	"github.com/spf13/cobra"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [json-args...]",
	Short: "Call a method on a tether server over the HTTP batch endpoint",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url, _ := cmd.Flags().GetString("url")
		printer := cli.NewFramePrinter(os.Stdout)

		callArgs := make([]any, 0, len(args)-1)
		for _, raw := range args[1:] {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				// Bare words are a convenience for string arguments.
				v = raw
			}
			callArgs = append(callArgs, v)
		}

		b := client.NewBatch()
		id := b.Call(args[0], callArgs...)
		b.Pull(id)

		results, err := client.Do(cmd.Context(), nil, url, b)
		if err != nil {
			printer.Errorf("call failed: %v", err)
			os.Exit(1)
		}

		ids := make([]int, 0, len(results))
		for rid := range results {
			ids = append(ids, rid)
		}
		sort.Ints(ids)
		for _, rid := range ids {
			res := results[rid]
			if res.Err != nil {
				printer.Errorf("[%d] %s", rid, res.Err.Error())
				continue
			}
			rendered, err := json.Marshal(res.Value)
			if err != nil {
				printer.Errorf("[%d] unrenderable result: %v", rid, err)
				continue
			}
			fmt.Printf("[%d] %s\n", rid, rendered)
		}
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().StringP("url", "u", "http://localhost:8080/rpc", "Server batch endpoint URL")
}
