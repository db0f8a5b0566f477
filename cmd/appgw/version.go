// cmd/appgw/version.go
// Implements the `appgw version` sub-command. Build metadata is injected at
// link time via -ldflags; appVersion/appCommit default to "dev"/"none" for
// local builds.
package main

import (
    "encoding/json"
    "fmt"
    "os"

    "github.com/spf13/cobra"
)

var (
    appVersion = "dev"
    appCommit  = "none"
)

func newVersionCmd() *cobra.Command {
    var outputJSON bool

    cmd := &cobra.Command{
        Use:   "version",
        Short: "Print appgw version information",
        RunE: func(cmd *cobra.Command, args []string) error {
            if outputJSON {
                enc := json.NewEncoder(os.Stdout)
                enc.SetIndent("", "  ")
                return enc.Encode(map[string]string{"version": appVersion, "commit": appCommit})
            }
            fmt.Printf("appgw %s (%s)\n", appVersion, appCommit)
            return nil
        },
    }

    cmd.Flags().BoolVar(&outputJSON, "json", false, "Print version information as JSON")
    return cmd
}
