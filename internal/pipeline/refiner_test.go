package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolhopper/freeswim-etl/internal/domain"
	"github.com/poolhopper/freeswim-etl/internal/observability"
	"github.com/poolhopper/freeswim-etl/internal/pipeline"
)

// --- mocks ---

type mockFetcher struct {
	pages map[string]domain.Page
	errs  map[string]error
	calls []string
}

func (m *mockFetcher) Fetch(_ context.Context, url string) (domain.Page, error) {
	m.calls = append(m.calls, url)
	if err := m.errs[url]; err != nil {
		return domain.Page{}, err
	}
	return m.pages[url], nil
}

type mockRecognizer struct {
	texts map[string]string
	errs  map[string]error
}

func (m *mockRecognizer) Recognize(_ context.Context, imageURL string) (string, error) {
	if err := m.errs[imageURL]; err != nil {
		return "", err
	}
	return m.texts[imageURL], nil
}

type mockExtractor struct {
	reply    string
	err      error
	pageText string
	ocrText  string
}

func (m *mockExtractor) Extract(_ context.Context, pageText, ocrText string) (string, error) {
	m.pageText = pageText
	m.ocrText = ocrText
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type mockStore struct {
	facilities []domain.Facility
	replaced   map[string][]domain.ScheduleRecord
	replaceErr error
}

func (m *mockStore) ListFacilities(_ context.Context) ([]domain.Facility, error) {
	return m.facilities, nil
}

func (m *mockStore) ReplaceSchedules(_ context.Context, poolCode string, records []domain.ScheduleRecord) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	if m.replaced == nil {
		m.replaced = map[string][]domain.ScheduleRecord{}
	}
	m.replaced[poolCode] = records
	return nil
}

type mockPublisher struct {
	published []string
	err       error
}

func (m *mockPublisher) PublishRefined(_ context.Context, poolCode string, _ []domain.ScheduleRecord) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, poolCode)
	return nil
}

// --- helpers ---

const testReply = "```json\n[{\"day\":\"화\",\"time_range\":\"08:00-08:50\",\"adult_fee\":9000,\"teen_fee\":5000}]\n```"

func webFacility(code, url string) domain.Facility {
	return domain.Facility{PoolCode: code, URL: url, SourceKind: domain.SourceWeb, IsOperating: true}
}

func newRefiner(f pipeline.Fetcher, r pipeline.Recognizer, e pipeline.Extractor, s pipeline.RecordStore, p pipeline.Publisher) *pipeline.Refiner {
	return pipeline.New(f, r, e, s, p, nil, slog.Default(), observability.NewMetricsForTesting())
}

func freezeClock(t *testing.T, at time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { domain.SetClock(nil) })
}

// --- tests ---

func TestRefineAll_HappyPath(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	freezeClock(t, now)

	fetcher := &mockFetcher{pages: map[string]domain.Page{
		"http://example.org/pool": {Text: "자유수영 화요일 08:00-08:50 성인 9,000원"},
	}}
	extractor := &mockExtractor{reply: testReply}
	store := &mockStore{}
	publisher := &mockPublisher{}

	refiner := newRefiner(fetcher, nil, extractor, store, publisher)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{
		webFacility("s2024060100ab", "http://example.org/pool"),
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Succeeded: 1}, result)

	records := store.replaced["s2024060100ab"]
	require.Len(t, records, 1)
	assert.Equal(t, "s2024060100ab", records[0].PoolCode)
	assert.Equal(t, "화", records[0].Day)
	assert.Equal(t, "08:00-08:50", records[0].TimeRange)
	assert.Equal(t, now, records[0].CreatedAt)

	assert.Equal(t, []string{"s2024060100ab"}, publisher.published)
	assert.NoError(t, refiner.CheckReadiness(context.Background()))
}

func TestRefineAll_SkipsFacilityWithoutSource(t *testing.T) {
	store := &mockStore{}
	refiner := newRefiner(&mockFetcher{}, nil, &mockExtractor{}, store, nil)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{
		{PoolCode: "closed", SourceKind: domain.SourceNone, IsOperating: false},
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Skipped: 1}, result)
	assert.Empty(t, store.replaced)
}

func TestRefineAll_FetchFailureIsolated(t *testing.T) {
	freezeClock(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	fetcher := &mockFetcher{
		pages: map[string]domain.Page{"http://good.example.org": {Text: "timetable"}},
		errs:  map[string]error{"http://bad.example.org": &domain.FetchError{URL: "http://bad.example.org", Err: errors.New("connection refused")}},
	}
	extractor := &mockExtractor{reply: testReply}
	store := &mockStore{}

	refiner := newRefiner(fetcher, nil, extractor, store, nil)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{
		webFacility("bad", "http://bad.example.org"),
		webFacility("good", "http://good.example.org"),
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Succeeded: 1, Failed: 1}, result)

	// The bad facility never corrupts the good one's records.
	assert.Contains(t, store.replaced, "good")
	assert.NotContains(t, store.replaced, "bad")
}

func TestRefineAll_ExtractionFailure(t *testing.T) {
	fetcher := &mockFetcher{pages: map[string]domain.Page{"http://example.org": {Text: "x"}}}
	extractor := &mockExtractor{err: &domain.ExtractionError{Attempts: 3, Err: errors.New("429")}}
	store := &mockStore{}

	refiner := newRefiner(fetcher, nil, extractor, store, nil)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{webFacility("p1", "http://example.org")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Failed: 1}, result)
	assert.Empty(t, store.replaced)
}

func TestRefineAll_MalformedReply(t *testing.T) {
	fetcher := &mockFetcher{pages: map[string]domain.Page{"http://example.org": {Text: "x"}}}
	extractor := &mockExtractor{reply: "죄송하지만 수영장 정보를 찾지 못했습니다."}
	store := &mockStore{}

	refiner := newRefiner(fetcher, nil, extractor, store, nil)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{webFacility("p1", "http://example.org")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Failed: 1}, result)
	assert.Empty(t, store.replaced)
}

func TestRefineAll_EmptyReplyIsSkipNotFailure(t *testing.T) {
	fetcher := &mockFetcher{pages: map[string]domain.Page{"http://example.org": {Text: "휴관 안내"}}}
	store := &mockStore{}

	for _, reply := range []string{"[]", "{}", "```json\n[]\n```"} {
		extractor := &mockExtractor{reply: reply}
		refiner := newRefiner(fetcher, nil, extractor, store, nil)

		result, err := refiner.RefineAll(context.Background(), []domain.Facility{webFacility("p1", "http://example.org")})
		require.NoError(t, err)
		assert.Equal(t, pipeline.BatchResult{Skipped: 1}, result, "reply %q", reply)
	}
	assert.Empty(t, store.replaced)
}

func TestRefineAll_OcrFailureDropsImageOnly(t *testing.T) {
	freezeClock(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	blog := domain.Facility{PoolCode: "blog1", URL: "http://blog.naver.com/pool", SourceKind: domain.SourceNaverBlog, IsOperating: true}
	fetcher := &mockFetcher{pages: map[string]domain.Page{
		blog.URL: {Text: "공지", ImageURLs: []string{"http://img/1.jpg", "http://img/2.jpg"}},
	}}
	recognizer := &mockRecognizer{
		texts: map[string]string{"http://img/2.jpg": "화 08:00-08:50 9000원"},
		errs:  map[string]error{"http://img/1.jpg": &domain.OcrError{ImageURL: "http://img/1.jpg", Err: errors.New("timeout")}},
	}
	extractor := &mockExtractor{reply: testReply}
	store := &mockStore{}

	refiner := newRefiner(fetcher, recognizer, extractor, store, nil)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{blog})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Succeeded: 1}, result)

	// Only the successful image's text reaches the extractor.
	assert.Equal(t, "화 08:00-08:50 9000원", extractor.ocrText)
}

func TestRefineAll_WebSourceSkipsOCR(t *testing.T) {
	freezeClock(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	fetcher := &mockFetcher{pages: map[string]domain.Page{
		"http://example.org": {Text: "timetable", ImageURLs: []string{"http://img/banner.jpg"}},
	}}
	recognizer := &mockRecognizer{errs: map[string]error{
		"http://img/banner.jpg": errors.New("should not be called"),
	}}
	extractor := &mockExtractor{reply: testReply}

	refiner := newRefiner(fetcher, recognizer, extractor, &mockStore{}, nil)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{webFacility("p1", "http://example.org")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Succeeded: 1}, result)
	assert.Empty(t, extractor.ocrText)
}

func TestRefineAll_InvalidRecordsDroppedIndividually(t *testing.T) {
	freezeClock(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	fetcher := &mockFetcher{pages: map[string]domain.Page{"http://example.org": {Text: "x"}}}
	extractor := &mockExtractor{reply: `[
		{"day":"화","time_range":"08:00-08:50","adult_fee":9000},
		{"day":"tuesday","time_range":"09:00-09:50","adult_fee":9000}
	]`}
	store := &mockStore{}

	refiner := newRefiner(fetcher, nil, extractor, store, nil)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{webFacility("p1", "http://example.org")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Succeeded: 1}, result)

	records := store.replaced["p1"]
	require.Len(t, records, 1)
	assert.Equal(t, "화", records[0].Day)
}

func TestRefineAll_AllRecordsInvalidIsFailure(t *testing.T) {
	fetcher := &mockFetcher{pages: map[string]domain.Page{"http://example.org": {Text: "x"}}}
	extractor := &mockExtractor{reply: `[{"day":"tuesday","time_range":"morning"}]`}
	store := &mockStore{}

	refiner := newRefiner(fetcher, nil, extractor, store, nil)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{webFacility("p1", "http://example.org")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Failed: 1}, result)
	assert.Empty(t, store.replaced)
}

func TestRefineAll_StorageFailureIsolated(t *testing.T) {
	freezeClock(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	fetcher := &mockFetcher{pages: map[string]domain.Page{"http://example.org": {Text: "x"}}}
	extractor := &mockExtractor{reply: testReply}
	store := &mockStore{replaceErr: &domain.StorageError{Op: "insert schedules", Err: errors.New("disk full")}}

	refiner := newRefiner(fetcher, nil, extractor, store, nil)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{webFacility("p1", "http://example.org")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Failed: 1}, result)
}

func TestRefineAll_PublisherFailureDoesNotFailFacility(t *testing.T) {
	freezeClock(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	fetcher := &mockFetcher{pages: map[string]domain.Page{"http://example.org": {Text: "x"}}}
	extractor := &mockExtractor{reply: testReply}
	publisher := &mockPublisher{err: errors.New("broker down")}

	refiner := newRefiner(fetcher, nil, extractor, &mockStore{}, publisher)

	result, err := refiner.RefineAll(context.Background(), []domain.Facility{webFacility("p1", "http://example.org")})
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchResult{Succeeded: 1}, result)
}

func TestRefineAll_Idempotent(t *testing.T) {
	freezeClock(t, time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	fetcher := &mockFetcher{pages: map[string]domain.Page{"http://example.org": {Text: "x"}}}
	extractor := &mockExtractor{reply: testReply}
	store := &mockStore{}

	refiner := newRefiner(fetcher, nil, extractor, store, nil)
	facilities := []domain.Facility{webFacility("p1", "http://example.org")}

	_, err := refiner.RefineAll(context.Background(), facilities)
	require.NoError(t, err)
	first := store.replaced["p1"]

	_, err = refiner.RefineAll(context.Background(), facilities)
	require.NoError(t, err)
	second := store.replaced["p1"]

	// Unchanged source and reply produce the same final record set:
	// superseded, not duplicated.
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("record set changed across identical passes (-first +second):\n%s", diff)
	}
	assert.Len(t, second, 1)
}

func TestRefineAll_CancelledBetweenFacilities(t *testing.T) {
	store := &mockStore{}
	refiner := newRefiner(&mockFetcher{}, nil, &mockExtractor{}, store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := refiner.RefineAll(ctx, []domain.Facility{webFacility("p1", "http://example.org")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, pipeline.BatchResult{}, result)
	assert.Empty(t, store.replaced)
}

func TestCheckReadiness_BeforeFirstPass(t *testing.T) {
	refiner := newRefiner(&mockFetcher{}, nil, &mockExtractor{}, &mockStore{}, nil)
	assert.Error(t, refiner.CheckReadiness(context.Background()))
}
