package inspect

import (
	"github.com/ValentinKolb/tks/cmd/util"
	"github.com/ValentinKolb/tks/lib/common"
	"github.com/ValentinKolb/tks/lib/store"
	"github.com/spf13/cobra"
)

var (
	st     store.IStore
	config common.StoreConfig

	// InspectCommands represents the read-only command group
	InspectCommands = &cobra.Command{
		Use:                "inspect",
		Short:              "Read records, resolve versions and print statistics",
		PersistentPreRunE:  openStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add store flags
	util.SetupStoreFlags(InspectCommands)

	// Add subcommands
	InspectCommands.AddCommand(infoCmd)
	InspectCommands.AddCommand(getCmd)
	InspectCommands.AddCommand(latestCmd)
	InspectCommands.AddCommand(scanCmd)
	InspectCommands.AddCommand(statsCmd)
}

// openStore opens the configured store
func openStore(cmd *cobra.Command, _ []string) (err error) {
	st, config, err = util.OpenStore(cmd)
	return err
}

// closeStore closes the store opened by openStore
func closeStore(_ *cobra.Command, _ []string) error {
	return st.Close()
}
