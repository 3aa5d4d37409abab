package commands

import (
	"github.com/mosaicnetworks/mempool/src/config"
	"github.com/spf13/cobra"
)

var (
	_config = config.NewDefaultConfig()
)

//RootCmd is the root command for the mempool node
var RootCmd = &cobra.Command{
	Use:              "mempool",
	Short:            "DAG mempool consensus",
	TraverseChildren: true,
}
