package cli

import (
	"github.com/spf13/cobra"

	"github.com/andydunstall/spread/cli/node"
	"github.com/andydunstall/spread/cli/publish"
	"github.com/andydunstall/spread/cli/status"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "spread [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Spread replicates a set of records across a network of nodes using
anti-entropy gossip.

Each node stores a set of records. Periodically each node sends a bloom
filter summarizing its records to a random sample of its peers, which respond
with the records the node is missing. Records published to a node are also
pushed to its peers.

Start a node with:

  $ spread node

Then start another node that connects to the first:

  $ spread node --peer.bind-addr :7100 --admin.bind-addr :7101 --peer.join localhost:7000

Publish a record to the first node:

  $ spread publish my-record

Then inspect the records on the second node:

  $ spread status records --server.url http://localhost:7101
`,
	}

	cmd.AddCommand(node.NewCommand())
	cmd.AddCommand(publish.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
