package arxiv_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/paperdigest/internal/arxiv"
	"github.com/temirov/paperdigest/internal/retry"
)

const sampleFeedConstant = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2510.09212v1</id>
    <published>2025-10-10T17:59:59Z</published>
    <title>Efficient Vision-Language-Action
      Models for Edge Robots</title>
    <summary>  We distill a VLA model.
    </summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <link href="http://arxiv.org/abs/2510.09212v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2510.09212v1" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2510.09213v2</id>
    <published>2025-10-10T18:00:00Z</published>
    <title>Second</title>
    <summary>Second abstract</summary>
  </entry>
</feed>`

const emptyFeedConstant = `<?xml version="1.0" encoding="UTF-8"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`

func newTestClient(serverURL string) *arxiv.Client {
	return arxiv.NewClient(arxiv.Options{
		APIURL:           serverURL + "/api/query",
		HTMLBaseURL:      serverURL + "/html/",
		Sleep:            retry.NoSleep,
		DisableRateLimit: true,
	})
}

func TestSearchByDateRangeBuildsQuery(testInstance *testing.T) {
	var capturedQuery atomic.Value
	var capturedUserAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		capturedQuery.Store(request.URL.Query())
		capturedUserAgent.Store(request.Header.Get("User-Agent"))
		_, _ = responseWriter.Write([]byte(sampleFeedConstant))
	}))
	defer server.Close()

	entries, searchError := newTestClient(server.URL).SearchByDateRange(context.Background(), arxiv.SearchRequest{
		Category:   "cs.RO",
		StartDate:  "2025-10-10",
		MaxResults: 25,
	})
	require.NoError(testInstance, searchError)
	require.Len(testInstance, entries, 2)

	query := capturedQuery.Load().(url.Values)
	require.Equal(testInstance, []string{"cat:cs.RO AND submittedDate:[20251010 TO 20251010]"}, query["search_query"])
	require.Equal(testInstance, []string{"25"}, query["max_results"])
	require.Equal(testInstance, []string{"submittedDate"}, query["sortBy"])
	require.Equal(testInstance, []string{"ascending"}, query["sortOrder"])
	require.Equal(testInstance, arxiv.DefaultUserAgent, capturedUserAgent.Load())

	firstEntry := entries[0]
	require.Equal(testInstance, "2510.09212v1", firstEntry.ID)
	require.Equal(testInstance, "Efficient Vision-Language-Action Models for Edge Robots", firstEntry.Title)
	require.Equal(testInstance, "We distill a VLA model.", firstEntry.Summary)
	require.Equal(testInstance, []string{"Ada Lovelace", "Alan Turing"}, firstEntry.Authors)
	require.Equal(testInstance, "http://arxiv.org/abs/2510.09212v1", firstEntry.Link)
	require.Equal(testInstance, "2025-10-10T17:59:59Z", firstEntry.Published)
	require.Equal(testInstance, "http://arxiv.org/abs/2510.09213v2", entries[1].Link)
}

func TestSearchByDateRangeRetriesRateLimits(testInstance *testing.T) {
	testCases := []struct {
		name             string
		statuses         []int
		expectError      bool
		expectedRequests int32
		expectedStatus   int
	}{
		{name: "recovers_after_429", statuses: []int{http.StatusTooManyRequests, http.StatusOK}, expectedRequests: 2},
		{name: "gives_up_after_three_429", statuses: []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests}, expectError: true, expectedRequests: 3, expectedStatus: http.StatusTooManyRequests},
		{name: "other_status_fails_immediately", statuses: []int{http.StatusServiceUnavailable}, expectError: true, expectedRequests: 1, expectedStatus: http.StatusServiceUnavailable},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			var requestCount atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
				requestIndex := int(requestCount.Add(1)) - 1
				status := testCase.statuses[len(testCase.statuses)-1]
				if requestIndex < len(testCase.statuses) {
					status = testCase.statuses[requestIndex]
				}
				responseWriter.WriteHeader(status)
				if status == http.StatusOK {
					_, _ = responseWriter.Write([]byte(sampleFeedConstant))
				}
			}))
			defer server.Close()

			entries, searchError := newTestClient(server.URL).SearchByDateRange(context.Background(), arxiv.SearchRequest{Category: "cs.AI", StartDate: "2025-10-10", EndDate: "2025-10-11"})
			require.Equal(testInstance, testCase.expectedRequests, requestCount.Load())
			if !testCase.expectError {
				require.NoError(testInstance, searchError)
				require.Len(testInstance, entries, 2)
				return
			}
			require.Error(testInstance, searchError)
			var statusError arxiv.HTTPStatusError
			require.True(testInstance, errors.As(searchError, &statusError))
			require.Equal(testInstance, testCase.expectedStatus, statusError.StatusCode)
		})
	}
}

func TestSearchByDateRangeValidatesRequest(testInstance *testing.T) {
	client := newTestClient("http://127.0.0.1:0")

	_, categoryError := client.SearchByDateRange(context.Background(), arxiv.SearchRequest{StartDate: "2025-10-10"})
	require.ErrorIs(testInstance, categoryError, arxiv.ErrCategoryRequired)

	_, dateError := client.SearchByDateRange(context.Background(), arxiv.SearchRequest{Category: "cs.RO"})
	require.ErrorIs(testInstance, dateError, arxiv.ErrStartDateRequired)
}

func TestLookupByID(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if request.URL.Query().Get("id_list") == "2510.09212" {
			_, _ = responseWriter.Write([]byte(sampleFeedConstant))
			return
		}
		_, _ = responseWriter.Write([]byte(emptyFeedConstant))
	}))
	defer server.Close()
	client := newTestClient(server.URL)

	entry, lookupError := client.LookupByID(context.Background(), "2510.09212")
	require.NoError(testInstance, lookupError)
	require.Equal(testInstance, "2510.09212v1", entry.ID)

	_, missingError := client.LookupByID(context.Background(), "2501.00000")
	require.ErrorIs(testInstance, missingError, arxiv.ErrPaperNotFound)
}

func TestFetchHTMLText(testInstance *testing.T) {
	var missingRequests atomic.Int32
	var flakyRequests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/html/2510.09212v1":
			_, _ = responseWriter.Write([]byte(`<html><head><style>.x{}</style></head><body><nav>menu</nav><article><h1> Title </h1><script>var x;</script><p>First   paragraph.</p><p>Second</p></article></body></html>`))
		case "/html/2510.00002":
			_, _ = responseWriter.Write([]byte(`<html><body><div id="header">skip</div><div id="main"><p>Main text</p></div></body></html>`))
		case "/html/2510.00003":
			if flakyRequests.Add(1) < 3 {
				responseWriter.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_, _ = responseWriter.Write([]byte(`<html><body><p>Whole</p><p>document</p></body></html>`))
		default:
			missingRequests.Add(1)
			responseWriter.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	client := newTestClient(server.URL)

	require.Equal(testInstance, "Title\nFirst   paragraph.\nSecond", client.FetchHTMLText(context.Background(), "2510.09212v1"))
	require.Equal(testInstance, "Main text", client.FetchHTMLText(context.Background(), "2510.00002"))
	require.Equal(testInstance, "Whole\ndocument", client.FetchHTMLText(context.Background(), "2510.00003"))
	require.Equal(testInstance, int32(3), flakyRequests.Load())
	require.Empty(testInstance, client.FetchHTMLText(context.Background(), "2510.00004"))
	require.Equal(testInstance, int32(3), missingRequests.Load())
	require.Equal(testInstance, server.URL+"/html/2510.00004", client.HTMLURL("2510.00004"))
}

func TestBuildPreview(testInstance *testing.T) {
	require.Equal(testInstance, "abstract", arxiv.BuildPreview("abstract", ""))
	require.Equal(testInstance, "abstract\n\nbody", arxiv.BuildPreview("abstract", "body"))

	longBody := strings.Repeat("文", 1600)
	preview := arxiv.BuildPreview("abstract", longBody)
	require.Equal(testInstance, "abstract\n\n"+strings.Repeat("文", 1500), preview)

	longAbstract := strings.Repeat("a", 1900)
	capped := arxiv.BuildPreview(longAbstract, longBody)
	require.Equal(testInstance, 2000, len([]rune(capped)))
	require.True(testInstance, strings.HasPrefix(capped, longAbstract+"\n\n文"))
}

func TestFetchHTMLTextRetryDelays(testInstance *testing.T) {
	testCases := []struct {
		name          string
		statuses      []int
		expectedWaits []time.Duration
		expectedText  string
	}{
		{name: "rate_limit_backs_off", statuses: []int{http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusOK}, expectedWaits: []time.Duration{2 * time.Second, 4 * time.Second}, expectedText: "Body"},
		{name: "server_error_retries_at_fixed_delay", statuses: []int{http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK}, expectedWaits: []time.Duration{2 * time.Second, 2 * time.Second}, expectedText: "Body"},
		{name: "missing_rendering_retries_then_gives_up", statuses: []int{http.StatusNotFound, http.StatusNotFound, http.StatusNotFound}, expectedWaits: []time.Duration{2 * time.Second, 2 * time.Second}},
		{name: "mixed_statuses", statuses: []int{http.StatusInternalServerError, http.StatusTooManyRequests, http.StatusOK}, expectedWaits: []time.Duration{2 * time.Second, 4 * time.Second}, expectedText: "Body"},
	}

	for testCaseIndex, testCase := range testCases {
		testInstance.Run(fmt.Sprintf("%d_%s", testCaseIndex, testCase.name), func(testInstance *testing.T) {
			var requestCount atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
				status := testCase.statuses[int(requestCount.Add(1))-1]
				responseWriter.WriteHeader(status)
				if status == http.StatusOK {
					_, _ = responseWriter.Write([]byte(`<html><body><article><p>Body</p></article></body></html>`))
				}
			}))
			defer server.Close()

			var waitsMutex sync.Mutex
			var recordedWaits []time.Duration
			client := arxiv.NewClient(arxiv.Options{
				APIURL:           server.URL + "/api/query",
				HTMLBaseURL:      server.URL + "/html/",
				DisableRateLimit: true,
				Sleep: func(waitContext context.Context, duration time.Duration) error {
					waitsMutex.Lock()
					defer waitsMutex.Unlock()
					recordedWaits = append(recordedWaits, duration)
					return waitContext.Err()
				},
			})

			require.Equal(testInstance, testCase.expectedText, client.FetchHTMLText(context.Background(), "2510.00005"))
			require.Equal(testInstance, int32(len(testCase.statuses)), requestCount.Load())
			require.Equal(testInstance, testCase.expectedWaits, recordedWaits)
		})
	}
}
