package repair

import (
	"fmt"

	"github.com/ValentinKolb/tks/cmd/util"
	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/ValentinKolb/tks/lib/journal"
	"github.com/spf13/cobra"
)

var (
	recoverCmd = &cobra.Command{
		Use:   "recover",
		Short: "Cancel uncommitted stamps left behind by crashed writers",
		Long:  "Cancel uncommitted stamps left behind by crashed writers. The same pass runs whenever a store is opened or closed; this command only prints its report.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := st.Recover()
			if err != nil {
				return err
			}
			fmt.Printf("scanned %d stamps in %s\n", report.Scanned, report.Duration)
			fmt.Printf("  canceled now   : %d\n", report.Canceled)
			fmt.Printf("  still claimed  : %d\n", report.Claimed)
			fmt.Printf("  canceled total : %d\n", report.Total)
			return nil
		},
	}
	eraseCmd = &cobra.Command{
		Use:   "erase [nid]",
		Short: "Erase the record of a nid",
		Long:  "Erase the record of a nid. With --into the chronology, its identities and the citations held against it are merged into another nid first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nid, err := util.ParseNid(args[0])
			if err != nil {
				return err
			}

			into, _ := cmd.Flags().GetString("into")
			if into == "" {
				if err := st.Erase(nid); err != nil {
					return err
				}
				fmt.Printf("erased nid %d\n", nid)
				return nil
			}

			intoNid, err := util.ParseNid(into)
			if err != nil {
				return err
			}
			if err := st.MergeThenErase(nid, intoNid); err != nil {
				return err
			}
			fmt.Printf("merged nid %d into %d\n", nid, intoNid)
			return nil
		},
	}
	importCmd = &cobra.Command{
		Use:   "import [journal]",
		Short: "Load a change-set journal into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			n, err := journal.Replay(args[0], func(e journal.Entry) error {
				if err := st.Write(e.Record, entity.ActivityLoadingChangeSet); err != nil {
					failed++
					fmt.Printf("nid %d: %v\n", e.Nid, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if err := st.Save(); err != nil {
				return err
			}
			fmt.Printf("imported %d of %d entries\n", n-failed, n)
			return nil
		},
	}
)

func init() {
	eraseCmd.Flags().String("into", "", util.WrapString("Merge the chronology into this nid before erasing it"))
}
