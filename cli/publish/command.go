package publish

import (
	"fmt"
	"io"
	"net/url"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/spread/status/client"
	"github.com/andydunstall/spread/status/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish [data]",
		Args:  cobra.MaximumNArgs(1),
		Short: "publish a record",
		Long: `Publish a record.

Adds a record containing the given data to the node, which then propagates
the record to the rest of the network. If no data argument is given the
record is read from stdin.

The record ID is the SHA-256 hash of its data, so publishing the same data
multiple times, or to multiple nodes, results in a single record.

Examples:
  # Publish a record.
  spread publish my-record

  # Publish the contents of a file.
  spread publish < record.json

  # Publish a record to node 10.26.104.56:7001.
  spread publish my-record --server.url http://10.26.104.56:7001
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("config: %s\n", err.Error())
			os.Exit(1)
		}

		var payload []byte
		if len(args) == 1 {
			payload = []byte(args[0])
		} else {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				fmt.Printf("failed to read stdin: %s\n", err.Error())
				os.Exit(1)
			}
			payload = b
		}

		// The URL has already been validated in conf.
		url, _ := url.Parse(conf.Server.URL)
		c := client.NewClient(url)
		defer c.Close()

		meta, err := client.NewRecords(c).Publish(payload)
		if err != nil {
			fmt.Printf("failed to publish record: %s\n", err.Error())
			os.Exit(1)
		}

		b, _ := yaml.Marshal(meta)
		fmt.Println(string(b))
	}

	return cmd
}
