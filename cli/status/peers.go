package status

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/spread/status/client"
)

func newPeersCommand(c *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "inspect connected peers",
		Long: `Inspect connected peers.

Queries the node for its ID and the peers it is connected to.

Examples:
  spread status peers
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showPeers(c)
	}

	return cmd
}

func showPeers(c *client.Client) {
	status, err := client.NewPeers(c).Status()
	if err != nil {
		fmt.Printf("failed to get peers: %s\n", err.Error())
		os.Exit(1)
	}

	b, _ := yaml.Marshal(status)
	fmt.Println(string(b))
}
