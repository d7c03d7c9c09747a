package status

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/spread/status/client"
)

func newGossipCommand(c *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gossip",
		Short: "inspect gossip state",
		Long: `Inspect gossip state.

Queries the node for the state and configuration of its gossiper, along with
the number of local records and records waiting to be pushed.

Examples:
  spread status gossip
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showGossip(c)
	}

	return cmd
}

func showGossip(c *client.Client) {
	status, err := client.NewGossip(c).Status()
	if err != nil {
		fmt.Printf("failed to get gossip status: %s\n", err.Error())
		os.Exit(1)
	}

	b, _ := yaml.Marshal(status)
	fmt.Println(string(b))
}
