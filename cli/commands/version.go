package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/turtacn/guomen/common/constants"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s (%s, %s/%s)\n",
				constants.ProjectName, constants.Version,
				runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
