package status

import (
	"fmt"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/spread/node/status"
	"github.com/andydunstall/spread/status/client"
)

func newRecordsCommand(c *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "inspect records",
		Long: `Inspect records.

Queries the node for the ID and size of each record in its local set.

Examples:
  spread status records
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showRecords(c)
	}

	return cmd
}

type recordsOutput struct {
	Records []status.RecordMeta `json:"records"`
}

func showRecords(c *client.Client) {
	records, err := client.NewRecords(c).List()
	if err != nil {
		fmt.Printf("failed to get records: %s\n", err.Error())
		os.Exit(1)
	}

	output := recordsOutput{
		Records: records,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newRecordCommand(c *client.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Args:  cobra.ExactArgs(1),
		Short: "inspect a record",
		Long: `Inspect a record.

Queries the node for the record with the given ID.

Examples:
  spread status record 2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae
`,
	}

	cmd.Run = func(cmd *cobra.Command, args []string) {
		showRecord(args[0], c)
	}

	return cmd
}

type recordOutput struct {
	ID      string `json:"id"`
	Payload string `json:"payload"`
}

func showRecord(id string, c *client.Client) {
	record, err := client.NewRecords(c).Get(id)
	if err != nil {
		fmt.Printf("failed to get record: %s: %s\n", id, err.Error())
		os.Exit(1)
	}

	output := recordOutput{
		ID:      record.ID.String(),
		Payload: string(record.Payload),
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}
