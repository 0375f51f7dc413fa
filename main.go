// go-parindex exchanges data attached to the entities of a partitioned index set
// between the ranks that share them.
package main

import (
	"fmt"
	"os"

	"github.com/spacemeshos/go-parindex/cmd"
	"github.com/spacemeshos/go-parindex/node"
)

var (
	version string
	commit  string
	branch  string
)

func main() { // run the app
	cmd.Version = version
	cmd.Commit = commit
	cmd.Branch = branch
	if err := node.GetCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
