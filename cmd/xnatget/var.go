// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var varCmd = &cobra.Command{
	Use:   "var SESSION FIELD [VALUE]",
	Short: "Read or write a session metadata field",
	Long: `Var reads or writes one metadata field of a session, such as the notes
field. With two arguments it prints the field's current value; with a
third it sets the field to that value.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runVar,
}

func init() {
	rootCmd.AddCommand(varCmd)
}

func runVar(cmd *cobra.Command, args []string) error {
	client, _, err := newClient(cmd)
	if err != nil {
		return err
	}

	session, field := args[0], args[1]
	if len(args) == 3 {
		return client.SetField(cmd.Context(), session, field, args[2])
	}

	value, err := client.GetField(cmd.Context(), session, field)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}
