package workspace

import (
	"context"
	"encoding/json"

	"cloud.google.com/go/bigquery"
	"github.com/pkg/errors"

	canary "github.com/sandialabs/canary/api/v1"
)

func marshalCounts(counts map[canary.Status]int) (string, error) {
	data, err := json.Marshal(counts)
	if err != nil {
		return "", errors.Wrap(err, "marshaling status counts")
	}
	return string(data), nil
}

// sessionSummaryRow is the BigQuery schema ExportSessionSummary writes,
// inferred from the struct tags the way tools/postgres_migrator's
// ResultRow is built field-by-field for insertion, generalized here to
// bigquery's InferSchema-driven Inserter instead of manual row marshaling.
type sessionSummaryRow struct {
	SessionID    string            `bigquery:"session_id"`
	TotalCases   int               `bigquery:"total_cases"`
	StatusCounts map[string]int    `bigquery:"-"`
	// StatusCountsJSON carries StatusCounts as a JSON string, since
	// bigquery's struct inference does not support a map[string]int field
	// directly.
	StatusCountsJSON string `bigquery:"status_counts_json"`
}

// ExportSessionSummary writes one row summarizing s to the given BigQuery
// dataset/table, for installations that aggregate results across
// workspaces in a warehouse. Optional: nothing else in this package calls
// it.
func ExportSessionSummary(ctx context.Context, client *bigquery.Client, dataset, table string, s *Session) error {
	s.mu.Lock()
	counts := statusCounts(s.Cases)
	total := len(s.Cases)
	s.mu.Unlock()

	countsJSON, err := marshalCounts(counts)
	if err != nil {
		return err
	}

	row := sessionSummaryRow{
		SessionID:        s.ID,
		TotalCases:       total,
		StatusCountsJSON: countsJSON,
	}

	inserter := client.Dataset(dataset).Table(table).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return errors.Wrapf(err, "inserting session summary for %s", s.ID)
	}
	return nil
}
