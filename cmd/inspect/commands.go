package inspect

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/tks/cmd/util"
	"github.com/ValentinKolb/tks/lib/coordinate"
	"github.com/ValentinKolb/tks/lib/entity"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Print the configuration and statistics of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := st.GetInfo()
			fmt.Print(config.String())
			fmt.Println()
			fmt.Println("CONTENT")
			fmt.Printf("  %-22s: %d (next nid %d)\n", "Identities", info.Identities, info.NextNid)
			fmt.Printf("  %-22s: %d\n", "Concepts", info.Concepts)
			fmt.Printf("  %-22s: %d\n", "Patterns", info.Patterns)
			fmt.Printf("  %-22s: %d\n", "Semantics", info.Semantics)
			fmt.Printf("  %-22s: %d (%d canceled)\n", "Stamps", info.Stamps, info.Canceled)
			fmt.Printf("  %-22s: %d bytes in %d records\n", "Records", info.Records.SizeBytes, info.Records.Entries)
			if info.StartupErr != "" {
				fmt.Println()
				fmt.Println("STARTUP ERRORS")
				fmt.Printf("  %s\n", info.StartupErr)
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [nid]",
		Short: "Print the chronology of a nid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nid, err := util.ParseNid(args[0])
			if err != nil {
				return err
			}
			if raw, _ := cmd.Flags().GetBool("raw"); raw {
				record, ok, err := st.Get(nid)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no record for nid %d", nid)
				}
				fmt.Println(hex.EncodeToString(record))
				return nil
			}

			c, ok, err := st.Chronology(nid)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no record for nid %d", nid)
			}
			fmt.Println(c)
			for _, v := range c.Versions {
				if v.Token == entity.StampVersionToken {
					fmt.Printf("  %s\n", v)
					continue
				}
				stamp, _, err := st.StampFor(v.StampNid)
				if err != nil {
					return err
				}
				fmt.Printf("  %s (%s)\n", v, stamp)
			}
			return nil
		},
	}
	latestCmd = &cobra.Command{
		Use:   "latest [nid]",
		Short: "Resolve the latest version of a nid at a STAMP coordinate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nid, err := util.ParseNid(args[0])
			if err != nil {
				return err
			}
			coord, err := coordinateFromFlags(cmd)
			if err != nil {
				return err
			}

			v, found, err := st.Latest(nid, coord)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("no version of nid %d is visible at %s\n", nid, coord)
				return nil
			}
			fmt.Println(v)
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Decode every record and count them by format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, _ := cmd.Flags().GetBool("list")
			counts := make(map[entity.FormatToken]int)
			var broken int

			err := st.ForEach(func(nid int32, record []byte) bool {
				c, err := entity.DecodeChronology(record)
				if err != nil {
					broken++
					fmt.Printf("%d: %v\n", nid, err)
					return true
				}
				counts[c.Token()]++
				if list {
					fmt.Println(c)
				}
				return true
			})
			if err != nil {
				return err
			}

			for _, token := range []entity.FormatToken{entity.ConceptChronologyToken, entity.PatternChronologyToken, entity.SemanticChronologyToken, entity.StampChronologyToken} {
				fmt.Printf("%-20s %d\n", token, counts[token])
			}
			fmt.Printf("%-20s %d\n", "undecodable", broken)
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print the store metrics in Prometheus text format",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			st.WriteMetrics(os.Stdout)
		},
	}
)

func init() {
	getCmd.Flags().Bool("raw", false, util.WrapString("Print the binary record as hex"))
	scanCmd.Flags().Bool("list", false, util.WrapString("Print every chronology"))

	key := "path"
	latestCmd.Flags().String(key, "", util.WrapString("Nid of the path to resolve on"))
	_ = latestCmd.MarkFlagRequired(key)
	key = "time"
	latestCmd.Flags().Int64(key, entity.TimeUncommitted, util.WrapString("Position time in epoch millis (default: no limit)"))
	key = "modules"
	latestCmd.Flags().String(key, "", util.WrapString("Comma-separated module nids to include (empty = all)"))
	key = "exclude-modules"
	latestCmd.Flags().String(key, "", util.WrapString("Comma-separated module nids to exclude"))
	key = "priority"
	latestCmd.Flags().String(key, "", util.WrapString("Comma-separated module nids deciding ties, highest priority first"))
	key = "states"
	latestCmd.Flags().String(key, "Active,Inactive,Withdrawn,Primordial", util.WrapString("Comma-separated allowed statuses"))
}

// coordinateFromFlags builds the coordinate described by the flags of the latest command
func coordinateFromFlags(cmd *cobra.Command) (coordinate.Coordinate, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return coordinate.Coordinate{}, err
	}

	path, err := util.ParseNid(viper.GetString("path"))
	if err != nil {
		return coordinate.Coordinate{}, fmt.Errorf("--path: %w", err)
	}
	coord := coordinate.New(entity.StampPosition{Time: viper.GetInt64("time"), PathNid: path})

	var states []entity.Status
	for _, name := range strings.Split(viper.GetString("states"), ",") {
		s, err := entity.ParseStatus(strings.TrimSpace(name))
		if err != nil {
			return coordinate.Coordinate{}, err
		}
		states = append(states, s)
	}
	coord = coord.WithAllowedStates(states...)

	for _, flag := range []struct {
		name  string
		apply func(coordinate.Coordinate, ...int32) coordinate.Coordinate
	}{
		{"modules", coordinate.Coordinate.WithModuleNids},
		{"exclude-modules", coordinate.Coordinate.WithExcludedModuleNids},
		{"priority", coordinate.Coordinate.WithModulePriority},
	} {
		nids, err := util.ParseNids(viper.GetString(flag.name))
		if err != nil {
			return coordinate.Coordinate{}, fmt.Errorf("--%s: %w", flag.name, err)
		}
		if len(nids) > 0 {
			coord = flag.apply(coord, nids...)
		}
	}
	return coord, nil
}
