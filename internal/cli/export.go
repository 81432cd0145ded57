package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export [persona...]",
		Short: "Export personas as JSON",
		Long:  "Export persona snapshots as a JSON array. With no names, every persona is exported.",
		Run:   runExport,
	}

	cmd.Flags().StringP("out", "o", "", "Write to this file instead of stdout")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	snapshots, err := s.ExportAll(cmd.Context(), args...)
	if err != nil {
		exitErr("export", err)
	}

	b, _ := json.MarshalIndent(snapshots, "", "  ")
	if out == "" {
		fmt.Println(string(b))
		return
	}
	if err := os.WriteFile(out, append(b, '\n'), 0o644); err != nil {
		exitErr("write export", err)
	}
	fmt.Printf(`{"ok":true,"exported":%d,"path":%q}`+"\n", len(snapshots), out)
}
