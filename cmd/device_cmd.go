package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/mirrorpair/internal/device"
	"github.com/nextlevelbuilder/mirrorpair/internal/store"
	storeopen "github.com/nextlevelbuilder/mirrorpair/internal/store/open"
)

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Inspect or reset this device's identity",
	}
	cmd.AddCommand(deviceIDCmd())
	cmd.AddCommand(deviceResetCmd())
	return cmd
}

func deviceIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print the device id, creating it on first use",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				exitErr(err)
			}
			kv, err := storeopen.Store(ctx, cfg.Storage)
			if err != nil {
				exitErr(err)
			}
			defer kv.Close()

			id := device.GetOrCreateID(ctx, kv)
			if jsonOutput {
				printJSON(os.Stdout, map[string]string{"deviceId": id})
				return
			}
			fmt.Println(id)
		},
	}
}

func deviceResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the device id and saved pairing token",
		Long:  "Deletes the stored device id and pairing token. The next command assigns a fresh id.",
		Run: func(cmd *cobra.Command, args []string) {
			if !yes {
				if !isInteractive() {
					exitErr(errors.New("refusing to reset without --yes in a non-interactive session"))
				}
				ok, err := promptConfirm("Forget this device's identity and pairing?", false)
				if err != nil || !ok {
					fmt.Println("Cancelled.")
					return
				}
			}

			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				exitErr(err)
			}
			kv, err := storeopen.Store(ctx, cfg.Storage)
			if err != nil {
				exitErr(err)
			}
			defer kv.Close()

			if err := kv.Delete(ctx, store.KeyPairToken); err != nil && !errors.Is(err, store.ErrNotFound) {
				exitClose(kv, fmt.Errorf("forget token: %w", err))
			}
			if err := device.Reset(ctx, kv); err != nil && !errors.Is(err, store.ErrNotFound) {
				exitClose(kv, fmt.Errorf("forget device id: %w", err))
			}
			fmt.Println(okStyle.Render("Device identity reset."))
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
