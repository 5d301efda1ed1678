// Command dds runs meshing tools on typed data folders and records their
// provenance.
package main

import (
	"os"

	"github.com/hexmeshworkshop/dds/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.Execute()

	format, _ := cmd.PersistentFlags().GetString("format")
	verbose, _ := cmd.PersistentFlags().GetBool("verbose")
	os.Exit(cli.ReportError(os.Stdout, os.Stderr, format, verbose, err))
}
