package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	export := &cobra.Command{
		Use:   "export",
		Short: "Export stored events as iCalendar or CSV",
		Run:   runExport,
	}
	export.Flags().String("format", "ics", "Output format: ics or csv")
	export.Flags().StringP("out", "o", "", "Output file (default: stdout)")

	imp := &cobra.Command{
		Use:   "import <file.ics>",
		Short: "Import events from an iCalendar file; - reads stdin",
		Args:  cobra.ExactArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(export, imp)
}

func runExport(cmd *cobra.Command, args []string) {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	a := openApp(cmd)
	defer a.Close()

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			exitErr("export", err)
		}
		defer f.Close()
		w = f
	}

	var err error
	switch strings.ToLower(format) {
	case "ics":
		err = a.Export(cmd.Context(), w)
	case "csv":
		err = a.ExportCSV(cmd.Context(), w)
	default:
		err = fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		exitErr("export", err)
	}
}

func runImport(cmd *cobra.Command, args []string) {
	a := openApp(cmd)
	defer a.Close()

	var r io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("import", err)
		}
		defer f.Close()
		r = f
	}

	res, err := a.Import(cmd.Context(), r)
	if err != nil {
		exitErr("import", err)
	}
	fmt.Printf("imported %d events (%d blocks dropped, %d rejected)\n", len(res.Added), res.Dropped, res.Failed)
}
