package warehouse

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/querypulse/querypulse/internal/config"
	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/pkg/types"
)

// BigQuery extracts history from a project's INFORMATION_SCHEMA jobs view.
type BigQuery struct {
	client    *bigquery.Client
	projectID string
	location  string
	region    string
}

func NewBigQuery(ctx context.Context, cfg *config.Config) (*BigQuery, error) {
	bq := cfg.Warehouse.BigQuery

	var opts []option.ClientOption
	if bq.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(bq.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, bq.ProjectID, opts...)
	if err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeConnectionFailed,
			"bigquery client init failed", err)
	}

	region := cfg.Warehouse.Region
	if region == "" {
		region = "us"
	}
	return &BigQuery{
		client:    client,
		projectID: bq.ProjectID,
		location:  bq.Location,
		region:    region,
	}, nil
}

// referencedTable mirrors the referenced_tables struct in JOBS_BY_PROJECT.
type referencedTable struct {
	ProjectID bigquery.NullString `bigquery:"project_id"`
	DatasetID bigquery.NullString `bigquery:"dataset_id"`
	TableID   bigquery.NullString `bigquery:"table_id"`
}

type bqHistoryRow struct {
	JobID            bigquery.NullString    `bigquery:"job_id"`
	Query            bigquery.NullString    `bigquery:"query"`
	StartTime        time.Time              `bigquery:"start_time"`
	EndTime          bigquery.NullTimestamp `bigquery:"end_time"`
	UserEmail        bigquery.NullString    `bigquery:"user_email"`
	StatementType    bigquery.NullString    `bigquery:"statement_type"`
	TotalBytesBilled bigquery.NullInt64     `bigquery:"total_bytes_billed"`
	ReferencedTables []referencedTable      `bigquery:"referenced_tables"`
}

// QueryHistory pulls completed SELECT jobs from JOBS_BY_PROJECT. Only
// successful jobs count; a failed query tells us nothing about access
// patterns that actually read data.
func (b *BigQuery) QueryHistory(ctx context.Context, start, end time.Time) ([]types.RawRow, error) {
	sql := fmt.Sprintf(`
		SELECT
			job_id, query, start_time, end_time, user_email,
			statement_type, total_bytes_billed, referenced_tables
		FROM `+"`region-%s`"+`.INFORMATION_SCHEMA.JOBS_BY_PROJECT
		WHERE job_type = 'QUERY'
		  AND statement_type = 'SELECT'
		  AND state = 'DONE'
		  AND error_result IS NULL
		  AND start_time >= @start_ts
		  AND start_time < @end_ts`, b.region)

	q := b.client.Query(sql)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_ts", Value: start.UTC()},
		{Name: "end_ts", Value: end.UTC()},
	}
	if b.location != "" {
		q.Location = b.location
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
			"bigquery history query failed", err)
	}

	var rows []types.RawRow
	for {
		var r bqHistoryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
				"bigquery history iteration failed", err)
		}

		tables := make([]string, 0, len(r.ReferencedTables))
		for _, t := range r.ReferencedTables {
			if !t.DatasetID.Valid || !t.TableID.Valid {
				continue
			}
			project := b.projectID
			if t.ProjectID.Valid {
				project = t.ProjectID.StringVal
			}
			tables = append(tables, project+"."+t.DatasetID.StringVal+"."+t.TableID.StringVal)
		}

		row := types.RawRow{
			"query_id":   r.JobID.StringVal,
			"query_text": r.Query.StringVal,
			"start_time": r.StartTime,
			"tables":     tables,
		}
		if r.EndTime.Valid {
			row["end_time"] = r.EndTime.Timestamp
		}
		if r.UserEmail.Valid {
			row["user_name"] = r.UserEmail.StringVal
		}
		if r.StatementType.Valid {
			row["statement_type"] = r.StatementType.StringVal
		}
		if r.TotalBytesBilled.Valid {
			row["bytes_scanned"] = r.TotalBytesBilled.Int64
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type bqColumnRow struct {
	TableCatalog bigquery.NullString `bigquery:"table_catalog"`
	TableSchema  string              `bigquery:"table_schema"`
	TableName    string              `bigquery:"table_name"`
	ColumnName   string              `bigquery:"column_name"`
	DataType     bigquery.NullString `bigquery:"data_type"`
	TotalRows    bigquery.NullInt64  `bigquery:"total_rows"`
	TotalBytes   bigquery.NullInt64  `bigquery:"total_logical_bytes"`
}

// Tables lists every column of every base table in the region, joined with
// storage statistics.
func (b *BigQuery) Tables(ctx context.Context) ([]types.TableMetadata, error) {
	sql := fmt.Sprintf(`
		SELECT
			c.table_catalog, c.table_schema, c.table_name,
			c.column_name, c.data_type,
			s.total_rows, s.total_logical_bytes
		FROM `+"`region-%s`"+`.INFORMATION_SCHEMA.COLUMNS AS c
		LEFT JOIN `+"`region-%s`"+`.INFORMATION_SCHEMA.TABLE_STORAGE AS s
		  ON s.project_id = c.table_catalog
		 AND s.table_schema = c.table_schema
		 AND s.table_name = c.table_name
		ORDER BY c.table_schema, c.table_name, c.ordinal_position`, b.region, b.region)

	q := b.client.Query(sql)
	if b.location != "" {
		q.Location = b.location
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
			"bigquery metadata query failed", err)
	}

	byKey := make(map[string]*types.TableMetadata)
	var order []string
	for {
		var r bqColumnRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, qperrors.NewExtractError(qperrors.CodeHistoryQuery,
				"bigquery metadata iteration failed", err)
		}

		project := b.projectID
		if r.TableCatalog.Valid {
			project = r.TableCatalog.StringVal
		}
		ref := types.TableRef{Database: project, Schema: r.TableSchema, Table: r.TableName}
		if ref.IsSystem() {
			continue
		}
		key := ref.Key()
		meta, ok := byKey[key]
		if !ok {
			meta = &types.TableMetadata{
				Ref:      ref,
				Platform: "bigquery",
				Project:  b.projectID,
				Region:   b.region,
			}
			if r.TotalRows.Valid {
				meta.RowCount = r.TotalRows.Int64
			}
			if r.TotalBytes.Valid {
				meta.SizeBytes = r.TotalBytes.Int64
			}
			byKey[key] = meta
			order = append(order, key)
		}
		meta.Columns = append(meta.Columns, types.ColumnMeta{
			Name: r.ColumnName,
			Type: r.DataType.StringVal,
		})
	}

	out := make([]types.TableMetadata, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out, nil
}

func (b *BigQuery) Close() error {
	return b.client.Close()
}
