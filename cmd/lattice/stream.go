package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"github.com/jacentio/lattice/stream"
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Runs as an AWS Lambda handler printing logical record changes of a DynamoDB stream",
	Long: `stream starts a Lambda handler for the DynamoDB stream of a dynamodb
backend table. Every write of a logical record is printed as one JSON line,
ready for a log subscription to pick up.`,
	Args: cobra.NoArgs,
	RunE: withDB(func(*cobra.Command, []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		h := stream.NewHandler(db, jsonLines(json.NewEncoder(os.Stdout)), logger)
		lambda.Start(h.HandleChanges)
		return nil
	}),
}

type changeLine struct {
	EventID         string         `json:"eventId,omitempty"`
	Kind            string         `json:"kind"`
	Table           string         `json:"table"`
	Key             string         `json:"key"`
	Old             map[string]any `json:"old,omitempty"`
	OldVersionstamp string         `json:"oldVersionstamp,omitempty"`
	New             map[string]any `json:"new,omitempty"`
	NewVersionstamp string         `json:"newVersionstamp,omitempty"`
}

// jsonLines returns a sink that encodes every change as one JSON line.
func jsonLines(enc *json.Encoder) stream.Sink {
	return func(_ context.Context, c stream.Change) error {
		return enc.Encode(changeLine{
			EventID:         c.EventID,
			Kind:            string(c.Kind),
			Table:           c.Table,
			Key:             c.Key.String(),
			Old:             c.Old,
			OldVersionstamp: c.OldVersionstamp,
			New:             c.New,
			NewVersionstamp: c.NewVersionstamp,
		})
	}
}
