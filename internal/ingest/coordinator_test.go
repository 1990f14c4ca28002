package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dida1024/sentrycore/internal/domain"
	"github.com/dida1024/sentrycore/internal/fetch"
)

type fakeItemStore struct {
	seen    map[string]bool
	created []*domain.Item
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{seen: map[string]bool{}}
}

func (f *fakeItemStore) CreateIfNotExists(ctx context.Context, item *domain.Item) (*domain.Item, bool, error) {
	if f.seen[item.URLHash] {
		return nil, false, nil
	}
	f.seen[item.URLHash] = true
	f.created = append(f.created, item)
	return item, true, nil
}

type fakeIngestLogStore struct{}

func (f *fakeIngestLogStore) Start(ctx context.Context, sourceID string) (*domain.IngestLog, error) {
	return &domain.IngestLog{ID: "log-1", SourceID: sourceID}, nil
}

func (f *fakeIngestLogStore) Complete(ctx context.Context, logEntry *domain.IngestLog) error {
	return nil
}

type fakeArchiver struct {
	key string
	err error
	put map[string][]byte
}

func (f *fakeArchiver) Put(ctx context.Context, itemID string, raw []byte) (string, error) {
	if f.put == nil {
		f.put = map[string][]byte{}
	}
	f.put[itemID] = raw
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

func TestCoordinator_Ingest_DedupesByURLHash(t *testing.T) {
	items := newFakeItemStore()
	coord := NewCoordinator(items, &fakeIngestLogStore{}, nil)

	fr := fetch.FetchResult{
		Status: fetch.StatusOK,
		Items: []fetch.FetchedItem{
			{URL: "https://example.com/a", Title: "A"},
			{URL: "https://example.com/a?utm_source=x", Title: "A duplicate via tracking param"},
			{URL: "https://example.com/b", Title: "B"},
		},
	}

	created, result, err := coord.Ingest(context.Background(), "source-1", fr)
	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Equal(t, 2, result.ItemsNew)
	assert.Equal(t, 1, result.ItemsDup)
	assert.Equal(t, domain.IngestSuccess, result.Status)
}

func TestCoordinator_Ingest_NoArchiverStoresRawInline(t *testing.T) {
	items := newFakeItemStore()
	coord := NewCoordinator(items, &fakeIngestLogStore{}, nil)

	fr := fetch.FetchResult{
		Status: fetch.StatusOK,
		Items:  []fetch.FetchedItem{{URL: "https://example.com/a", Raw: `{"body":"x"}`}},
	}

	created, _, err := coord.Ingest(context.Background(), "source-1", fr)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.NotNil(t, created[0].RawData)
	assert.Equal(t, `{"body":"x"}`, *created[0].RawData)
}

func TestCoordinator_Ingest_ArchiverStoresObjectKey(t *testing.T) {
	items := newFakeItemStore()
	archiver := &fakeArchiver{key: "items/abc.json.gz"}
	coord := NewCoordinator(items, &fakeIngestLogStore{}, archiver)

	fr := fetch.FetchResult{
		Status: fetch.StatusOK,
		Items:  []fetch.FetchedItem{{URL: "https://example.com/a", Raw: `{"body":"x"}`}},
	}

	created, _, err := coord.Ingest(context.Background(), "source-1", fr)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.NotNil(t, created[0].RawData)
	assert.Equal(t, "items/abc.json.gz", *created[0].RawData)
	assert.Contains(t, archiver.put, created[0].ID)
}

func TestCoordinator_Ingest_ArchiverFailureFallsBackToInline(t *testing.T) {
	items := newFakeItemStore()
	archiver := &fakeArchiver{err: assert.AnError}
	coord := NewCoordinator(items, &fakeIngestLogStore{}, archiver)

	fr := fetch.FetchResult{
		Status: fetch.StatusOK,
		Items:  []fetch.FetchedItem{{URL: "https://example.com/a", Raw: `{"body":"x"}`}},
	}

	created, _, err := coord.Ingest(context.Background(), "source-1", fr)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.NotNil(t, created[0].RawData)
	assert.Equal(t, `{"body":"x"}`, *created[0].RawData, "falls back to the inline raw body when the archiver errors")
}
