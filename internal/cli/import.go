package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/persona-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import personas from JSON",
		Long:  "Import persona snapshots from a file or stdin. Accepts a single snapshot or the array produced by export.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	cmd.Flags().Bool("overwrite", false, "Replace personas that already exist")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	overwrite, _ := cmd.Flags().GetBool("overwrite")

	var data []byte
	var err error
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read input", err)
	}

	snapshots, err := parseSnapshots(data)
	if err != nil {
		exitErr("parse json", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	imported, err := s.Import(cmd.Context(), snapshots, overwrite)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"imported":%d,"skipped":%d}`+"\n", imported, len(snapshots)-imported)
}

func parseSnapshots(data []byte) ([]store.Exported, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var out []store.Exported
		err := json.Unmarshal(data, &out)
		return out, err
	}
	var one store.Exported
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []store.Exported{one}, nil
}
