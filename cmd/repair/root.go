package repair

import (
	"github.com/ValentinKolb/tks/cmd/util"
	"github.com/ValentinKolb/tks/lib/store"
	"github.com/spf13/cobra"
)

var (
	st store.IStore

	// RepairCommands represents the command group that changes a store
	RepairCommands = &cobra.Command{
		Use:                "repair",
		Short:              "Recover stamps, erase records and import change sets",
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add store flags
	util.SetupStoreFlags(RepairCommands)

	// Add subcommands
	RepairCommands.AddCommand(recoverCmd)
	RepairCommands.AddCommand(eraseCmd)
	RepairCommands.AddCommand(importCmd)
}

// openStore opens the configured store
func openStore(cmd *cobra.Command, _ []string) (err error) {
	st, _, err = util.OpenStore(cmd)
	return err
}

// closeStore saves and closes the store opened by openStore
func closeStore(_ *cobra.Command, _ []string) error {
	return st.Close()
}
