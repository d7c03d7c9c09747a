package status

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/andydunstall/spread/status/client"
	"github.com/andydunstall/spread/status/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each node exposes a status API to inspect the state of the node, this can be
used to answer questions such as:
* What records does this node have?
* What peers is this node connected to?
* What is the state of the gossiper?

See 'status --help' for the available commands.

Examples:
  # Inspect the records on the node.
  spread status records

  # Inspect the peers of node 10.26.104.56:7001.
  spread status peers --server.url http://10.26.104.56:7001
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.PersistentFlags())

	c := client.NewClient(nil)

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("config: %s\n", err.Error())
			os.Exit(1)
		}

		url, _ := url.Parse(conf.Server.URL)
		c.SetURL(url)
	}

	cmd.AddCommand(newRecordsCommand(c))
	cmd.AddCommand(newRecordCommand(c))
	cmd.AddCommand(newGossipCommand(c))
	cmd.AddCommand(newPeersCommand(c))

	return cmd
}
