package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newHistoryCmd creates the `standin history` command group for inspecting
// stored transcripts without going through the HTTP API.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear stored assist transcripts",
	}

	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryClearCmd(),
	)
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List senders with stored transcripts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			senders, err := store.List()
			if err != nil {
				return err
			}
			if len(senders) == 0 {
				fmt.Println("no transcripts stored")
				return nil
			}
			for _, sender := range senders {
				fmt.Println(sender)
			}
			return nil
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <sender>",
		Short: "Print the stored transcript for a sender as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			transcript, err := store.Load(args[0])
			if err != nil {
				return err
			}
			if transcript == nil {
				return fmt.Errorf("no assist history found for %s", args[0])
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(transcript)
		},
	}
}

func newHistoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <sender>",
		Short: "Delete the stored transcript for a sender",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			cleared, err := store.Clear(args[0])
			if err != nil {
				return err
			}
			if !cleared {
				return fmt.Errorf("no assist history found for %s", args[0])
			}
			fmt.Println("assist history cleared")
			return nil
		},
	}
}
