package export_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/DeafMist/issue-harvester/internal/export"
	"github.com/DeafMist/issue-harvester/internal/models"
)

func sampleIssue() models.CleanedIssue {
	rec := models.CleanedIssue{
		IssueID:     "SPARK-100",
		Project:     "SPARK",
		Title:       "Executor crash",
		Description: "Executors die with an error.",
		Status:      "Open",
		Priority:    "Major",
		Reporter:    "Ann",
		Created:     "2021-01-01",
		Updated:     "2021-01-02",
		Derived: models.Derived{
			Summary:        "Executors die with an error.",
			Classification: "Bug",
			QA:             models.QA{Question: "What is the issue about: Executor crash", Answer: "Executors die with an error."},
		},
	}
	for i := 1; i <= 7; i++ {
		rec.Labels = append(rec.Labels, fmt.Sprintf("l%d", i))
	}
	for i := 1; i <= 8; i++ {
		rec.Comments = append(rec.Comments, fmt.Sprintf("c%d", i))
	}
	return rec
}

func cleanedLog(t *testing.T, recs ...models.CleanedIssue) string {
	t.Helper()
	var b strings.Builder
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String()
}

func TestJoinList(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		limit int
		want  string
	}{
		{name: "empty", items: nil, want: ""},
		{name: "single", items: []string{"a"}, want: "a"},
		{name: "newlines and padding", items: []string{" line one\nline two ", "b"}, want: "line one line two || b"},
		{name: "limit", items: []string{"1", "2", "3"}, limit: 2, want: "1 || 2"},
		{name: "limit above length", items: []string{"1"}, limit: 5, want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, export.JoinList(tt.items, tt.limit))
		})
	}
}

func TestCSVSevenLabelsEightComments(t *testing.T) {
	var out bytes.Buffer
	sink, err := export.NewCSVSink(&out)
	require.NoError(t, err)

	stats, err := export.Copy(context.Background(), strings.NewReader(cleanedLog(t, sampleIssue())), sink)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.Equal(t, 1, stats.Rows)

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, export.Columns, rows[0])

	row := rows[1]
	require.Equal(t, "SPARK-100", row[0])
	require.Equal(t, "l1 || l2 || l3 || l4 || l5 || l6 || l7", row[8])
	require.Equal(t, "c1 || c2 || c3 || c4 || c5", row[9])
	require.Equal(t, "Bug", row[13])
	require.Equal(t, "What is the issue about: Executor crash", row[14])
}

func TestCopySkipsMalformedLines(t *testing.T) {
	var out bytes.Buffer
	sink, err := export.NewCSVSink(&out)
	require.NoError(t, err)

	in := "\n{broken\n" + `{"issue_id":"X-1"}` + "\n" + `{"issue_id":5}` + "\n"
	stats, err := export.Copy(context.Background(), strings.NewReader(in), sink)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.Equal(t, 1, stats.Rows)
	require.Equal(t, 2, stats.Skipped)

	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "X-1", rows[1][0])
	require.Equal(t, "", rows[1][8])
}

func TestWriteFileCSV(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cleaned_issues.jsonl")
	dst := filepath.Join(dir, "out", "cleaned_issues.csv")
	require.NoError(t, os.WriteFile(src, []byte(cleanedLog(t, sampleIssue(), sampleIssue())), 0o644))

	stats, err := export.WriteFile(context.Background(), src, dst, export.FormatCSV, nil)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Rows)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	leftovers, err := filepath.Glob(filepath.Join(dir, "out", "*.tmp"))
	require.NoError(t, err)
	require.Empty(t, leftovers)
}

func TestWriteFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.csv")

	stats, err := export.WriteFile(context.Background(), filepath.Join(dir, "absent.jsonl"), dst, export.FormatCSV, nil)
	require.NoError(t, err)
	require.Zero(t, stats.Rows)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, strings.Join(export.Columns, ",")+"\n", string(data))
}

func TestWriteFileParquet(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cleaned_issues.jsonl")
	dst := filepath.Join(dir, "cleaned_issues.parquet")
	require.NoError(t, os.WriteFile(src, []byte(cleanedLog(t, sampleIssue())), 0o644))

	stats, err := export.WriteFile(context.Background(), src, dst, export.FormatParquet, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Rows)

	fr, err := local.NewLocalFileReader(dst)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(export.Row), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(1), pr.GetNumRows())

	rows := make([]export.Row, 1)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, "SPARK-100", rows[0].IssueID)
	require.Equal(t, "c1 || c2 || c3 || c4 || c5", rows[0].Comments)
}

func TestParseFormat(t *testing.T) {
	f, err := export.ParseFormat("parquet")
	require.NoError(t, err)
	require.Equal(t, export.FormatParquet, f)
	require.Equal(t, "application/vnd.apache.parquet", f.ContentType())

	_, err = export.ParseFormat("xlsx")
	require.Error(t, err)
}

type fakePutter struct {
	bucket, object, path, contentType string
	err                               error
}

func (f *fakePutter) FPutObject(_ context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.bucket, f.object, f.path, f.contentType = bucket, object, filePath, opts.ContentType
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

func TestUploaderUpload(t *testing.T) {
	put := &fakePutter{}
	u := export.NewUploader(put, "artifacts", "/exports/")

	loc, err := u.Upload(context.Background(), "/tmp/data/cleaned_issues.csv", export.FormatCSV)
	require.NoError(t, err)
	require.Equal(t, "s3://artifacts/exports/cleaned_issues.csv", loc)
	require.Equal(t, "artifacts", put.bucket)
	require.Equal(t, "exports/cleaned_issues.csv", put.object)
	require.Equal(t, "/tmp/data/cleaned_issues.csv", put.path)
	require.Equal(t, "text/csv", put.contentType)

	put.err = fmt.Errorf("denied")
	_, err = u.Upload(context.Background(), "/tmp/x.csv", export.FormatCSV)
	require.ErrorContains(t, err, "denied")
}

func TestNewS3UploaderValidates(t *testing.T) {
	_, err := export.NewS3Uploader(export.S3Config{Endpoint: "localhost:9000"})
	require.Error(t, err)

	u, err := export.NewS3Uploader(export.S3Config{Endpoint: "http://localhost:9000", Bucket: "b", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	require.NotNil(t, u)
}
