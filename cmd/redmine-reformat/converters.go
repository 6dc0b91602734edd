// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var convertersCmd = &cobra.Command{
	Use:   "converters",
	Short: "List the registered converter names",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry(zap.NewNop())
		if err != nil {
			return err
		}
		for _, name := range reg.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertersCmd)
}
