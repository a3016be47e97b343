package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/tks/cmd/inspect"
	"github.com/ValentinKolb/tks/cmd/repair"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "tks",
		Short: "terminology knowledge store",
		Long: fmt.Sprintf(`tKS (v%s)

A versioned, persistent store for terminology components. Every component
keeps its full history of STAMP-versioned edits in one binary chronology;
concurrent writers are merged without locks.

Flags can also be set with environment variables of the form TKS_<flag>
(e.g. TKS_DATA_DIR=/var/lib/tks).`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tKS",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tKS v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(inspect.InspectCommands)
	RootCmd.AddCommand(repair.RepairCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
