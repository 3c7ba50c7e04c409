package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/intake/internal/storage"
)

type fakeSource struct {
	subs  []storage.Submission
	calls int
}

func (f *fakeSource) ListSubmissions(ctx context.Context, limit, offset int) ([]storage.Submission, error) {
	f.calls++
	if offset >= len(f.subs) {
		return nil, nil
	}
	end := min(offset+limit, len(f.subs))
	return f.subs[offset:end], nil
}

func makeSubs(n int) []storage.Submission {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]storage.Submission, n)
	for i := range out {
		out[i] = storage.Submission{
			ID:          fmt.Sprintf("profil_%03d", i),
			SessionID:   "sess",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
			Status:      storage.StatusCompleted,
			ProfileJSON: fmt.Sprintf(`{"profil_id":"profil_%03d"}`, i),
			ResultJSON:  `{"resultats":[]}`,
		}
	}
	return out
}

func TestWriteJSONLPages(t *testing.T) {
	src := &fakeSource{subs: makeSubs(250)}
	var buf bytes.Buffer

	n, err := WriteJSONL(context.Background(), src, &buf)
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, 3, src.calls)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 250)

	var first Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "profil_000", first.ID)
	assert.JSONEq(t, `{"profil_id":"profil_000"}`, string(first.Profile))
	assert.JSONEq(t, `{"resultats":[]}`, string(first.Result))
}

func TestWriteJSONLPendingRecord(t *testing.T) {
	src := &fakeSource{subs: []storage.Submission{{
		ID: "profil_x", Status: storage.StatusFailed, ProfileJSON: "", Error: "HTTP 502",
	}}}
	var buf bytes.Buffer
	_, err := WriteJSONL(context.Background(), src, &buf)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Nil(t, raw["profile"])
	assert.NotContains(t, raw, "result")
	assert.Equal(t, "HTTP 502", raw["error"])
}

type errSource struct{}

func (errSource) ListSubmissions(ctx context.Context, limit, offset int) ([]storage.Submission, error) {
	return nil, errors.New("db closed")
}

func TestWriteJSONLSourceError(t *testing.T) {
	_, err := WriteJSONL(context.Background(), errSource{}, io.Discard)
	assert.ErrorContains(t, err, "db closed")
}

type fakeUploader struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3manager.UploadOutput{Location: "https://bucket.s3.amazonaws.com/" + aws.StringValue(in.Key)}, nil
}

func TestS3Export(t *testing.T) {
	up := &fakeUploader{}
	e := NewS3ExporterWithUploader(up, "intake-history", "submissions")
	e.now = func() time.Time { return time.Date(2026, 7, 14, 8, 30, 0, 0, time.UTC) }

	loc, n, err := e.Export(context.Background(), &fakeSource{subs: makeSubs(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "https://bucket.s3.amazonaws.com/submissions/submissions-20260714T083000Z.jsonl", loc)
	assert.Equal(t, "intake-history", aws.StringValue(up.input.Bucket))
	assert.Equal(t, "application/x-ndjson", aws.StringValue(up.input.ContentType))

	sc := bufio.NewScanner(bytes.NewReader(up.body))
	lines := 0
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 3, lines)
}

func TestS3ExportUploadError(t *testing.T) {
	up := &fakeUploader{err: errors.New("access denied")}
	e := NewS3ExporterWithUploader(up, "intake-history", "")

	_, _, err := e.Export(context.Background(), &fakeSource{subs: makeSubs(300)})
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3ExporterNeedsBucket(t *testing.T) {
	_, err := NewS3Exporter("eu-west-3", "", "")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	e := NewS3ExporterWithUploader(&fakeUploader{}, "b", "")
	assert.Equal(t, "submissions-20260101T000000Z.jsonl", e.Key(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}
