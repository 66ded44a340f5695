package arxiv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/temirov/paperdigest/internal/retry"
)

const (
	// DefaultAPIURL is the arXiv query endpoint.
	DefaultAPIURL = "https://export.arxiv.org/api/query"
	// DefaultHTMLBaseURL hosts the HTML renderings of papers.
	DefaultHTMLBaseURL = "https://arxiv.org/html"
	// DefaultUserAgent identifies requests made by the client.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

	defaultRequestTimeoutConstant  = 30 * time.Second
	defaultQueryIntervalConstant   = 3 * time.Second
	defaultHTMLIntervalConstant    = time.Second
	defaultQueryRetryDelayConstant = 3 * time.Second
	defaultHTMLRetryDelayConstant  = 2 * time.Second
	retryAttemptsConstant          = 3
	retryMultiplierConstant        = 2.0

	queryParameterSearchConstant     = "search_query"
	queryParameterStartConstant      = "start"
	queryParameterMaxResultsConstant = "max_results"
	queryParameterSortByConstant     = "sortBy"
	queryParameterSortOrderConstant  = "sortOrder"
	queryParameterIDListConstant     = "id_list"
	querySortBySubmittedConstant     = "submittedDate"
	querySortOrderAscendingConstant  = "ascending"
	queryStartOffsetConstant         = "0"
	searchQueryTemplateConstant      = "cat:%s AND submittedDate:[%s TO %s]"
	dateSeparatorConstant            = "-"
	urlPathSeparatorConstant         = "/"
	userAgentHeaderConstant          = "User-Agent"

	httpStatusTemplateConstant       = "arXiv request %s returned HTTP %d"
	categoryRequiredMessageConstant  = "arXiv category must be provided"
	startDateRequiredMessageConstant = "arXiv search start date must be provided"
	paperNotFoundTemplateConstant    = "%w: %s"
	paperNotFoundMessageConstant     = "paper not found on arXiv"
	searchFailedTemplateConstant     = "arXiv search for %s failed: %w"
	lookupFailedTemplateConstant     = "arXiv lookup for %s failed: %w"
	requestBuildTemplateConstant     = "failed to build arXiv request: %w"
	responseReadTemplateConstant     = "failed to read arXiv response: %w"
	limiterWaitTemplateConstant      = "arXiv rate limiter: %w"

	queryRetryLogMessageConstant  = "arXiv query failed, retrying"
	htmlRetryLogMessageConstant   = "arXiv HTML download failed, retrying"
	htmlSkippedLogMessageConstant = "arXiv HTML unavailable, using abstract"
	htmlExtractLogMessageConstant = "arXiv HTML could not be parsed"
	logFieldCategoryConstant      = "category"
	logFieldIdentifierConstant    = "id"
	logFieldAttemptConstant       = "attempt"
	logFieldWaitConstant          = "wait"
	logFieldStatusCodeConstant    = "status_code"
	logFieldRequestKindConstant   = "request"
	requestKindQueryConstant      = "query"
	requestKindLookupConstant     = "lookup"
	requestKindHTMLConstant       = "html"
	attemptDisplayOffsetConstant  = 1
)

// ErrPaperNotFound indicates that arXiv returned no entry for the requested identifier.
var ErrPaperNotFound = errors.New(paperNotFoundMessageConstant)

// ErrCategoryRequired indicates that a search omitted the category.
var ErrCategoryRequired = errors.New(categoryRequiredMessageConstant)

// ErrStartDateRequired indicates that a search omitted the start date.
var ErrStartDateRequired = errors.New(startDateRequiredMessageConstant)

// HTTPStatusError reports a non-success HTTP status returned by arXiv.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

// Error describes the failing request.
func (statusError HTTPStatusError) Error() string {
	return fmt.Sprintf(httpStatusTemplateConstant, statusError.URL, statusError.StatusCode)
}

// Options configure a Client. Zero values select the public arXiv endpoints and polite intervals.
type Options struct {
	APIURL           string
	HTMLBaseURL      string
	UserAgent        string
	RequestTimeout   time.Duration
	QueryInterval    time.Duration
	HTMLInterval     time.Duration
	QueryRetryDelay  time.Duration
	HTMLRetryDelay   time.Duration
	HTTPClient       *http.Client
	Logger           *zap.Logger
	Sleep            retry.Sleeper
	DisableRateLimit bool
}

// SearchRequest selects papers of one category submitted within a date window.
// Dates use the YYYY-MM-DD layout; a blank end date equals the start date.
type SearchRequest struct {
	Category   string
	StartDate  string
	EndDate    string
	MaxResults int
}

// Client talks to the arXiv query API and downloads HTML renderings.
// Query and HTML requests share separate rate limiters.
type Client struct {
	httpClient   *http.Client
	apiURL       string
	htmlBaseURL  string
	userAgent    string
	queryLimiter *rate.Limiter
	htmlLimiter  *rate.Limiter
	queryPolicy  retry.Policy
	htmlPolicy   retry.Policy
	logger       *zap.Logger
}

// NewClient constructs a Client from options.
func NewClient(options Options) *Client {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		requestTimeout := options.RequestTimeout
		if requestTimeout <= 0 {
			requestTimeout = defaultRequestTimeoutConstant
		}
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	queryRetryDelay := options.QueryRetryDelay
	if queryRetryDelay <= 0 {
		queryRetryDelay = defaultQueryRetryDelayConstant
	}
	htmlRetryDelay := options.HTMLRetryDelay
	if htmlRetryDelay <= 0 {
		htmlRetryDelay = defaultHTMLRetryDelayConstant
	}

	client := &Client{
		httpClient:   httpClient,
		apiURL:       firstNonBlank(options.APIURL, DefaultAPIURL),
		htmlBaseURL:  strings.TrimRight(firstNonBlank(options.HTMLBaseURL, DefaultHTMLBaseURL), urlPathSeparatorConstant),
		userAgent:    firstNonBlank(options.UserAgent, DefaultUserAgent),
		queryLimiter: newLimiter(options.QueryInterval, defaultQueryIntervalConstant, options.DisableRateLimit),
		htmlLimiter:  newLimiter(options.HTMLInterval, defaultHTMLIntervalConstant, options.DisableRateLimit),
		logger:       logger,
	}
	client.queryPolicy = retry.Policy{
		MaxAttempts:  retryAttemptsConstant,
		InitialDelay: queryRetryDelay,
		Multiplier:   retryMultiplierConstant,
		Sleep:        options.Sleep,
	}
	client.htmlPolicy = retry.Policy{
		MaxAttempts:  retryAttemptsConstant,
		InitialDelay: htmlRetryDelay,
		Multiplier:   retryMultiplierConstant,
		Sleep:        options.Sleep,
	}
	return client
}

// HTMLURL returns the HTML rendering address for identifier.
func (client *Client) HTMLURL(identifier string) string {
	return client.htmlBaseURL + urlPathSeparatorConstant + strings.TrimSpace(identifier)
}

// SearchByDateRange lists papers of a category submitted within the window, oldest first.
// HTTP 429 responses and network failures are retried with exponential backoff;
// other statuses fail immediately with HTTPStatusError.
func (client *Client) SearchByDateRange(executionContext context.Context, request SearchRequest) ([]Entry, error) {
	category := strings.TrimSpace(request.Category)
	if len(category) == 0 {
		return nil, ErrCategoryRequired
	}
	startDate := strings.ReplaceAll(strings.TrimSpace(request.StartDate), dateSeparatorConstant, "")
	if len(startDate) == 0 {
		return nil, ErrStartDateRequired
	}
	endDate := strings.ReplaceAll(strings.TrimSpace(request.EndDate), dateSeparatorConstant, "")
	if len(endDate) == 0 {
		endDate = startDate
	}

	queryValues := url.Values{}
	queryValues.Set(queryParameterSearchConstant, fmt.Sprintf(searchQueryTemplateConstant, category, startDate, endDate))
	queryValues.Set(queryParameterStartConstant, queryStartOffsetConstant)
	if request.MaxResults > 0 {
		queryValues.Set(queryParameterMaxResultsConstant, strconv.Itoa(request.MaxResults))
	}
	queryValues.Set(queryParameterSortByConstant, querySortBySubmittedConstant)
	queryValues.Set(queryParameterSortOrderConstant, querySortOrderAscendingConstant)

	document, fetchError := client.fetchFeed(executionContext, queryValues, zap.String(logFieldCategoryConstant, category), requestKindQueryConstant)
	if fetchError != nil {
		return nil, fmt.Errorf(searchFailedTemplateConstant, category, fetchError)
	}
	return ParseFeed(document)
}

// LookupByID fetches the metadata of a single paper.
func (client *Client) LookupByID(executionContext context.Context, identifier string) (Entry, error) {
	trimmedIdentifier := strings.TrimSpace(identifier)
	queryValues := url.Values{}
	queryValues.Set(queryParameterIDListConstant, trimmedIdentifier)

	document, fetchError := client.fetchFeed(executionContext, queryValues, zap.String(logFieldIdentifierConstant, trimmedIdentifier), requestKindLookupConstant)
	if fetchError != nil {
		return Entry{}, fmt.Errorf(lookupFailedTemplateConstant, trimmedIdentifier, fetchError)
	}
	entries, parseError := ParseFeed(document)
	if parseError != nil {
		return Entry{}, fmt.Errorf(lookupFailedTemplateConstant, trimmedIdentifier, parseError)
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf(paperNotFoundTemplateConstant, ErrPaperNotFound, trimmedIdentifier)
	}
	return entries[0], nil
}

// FetchHTMLText downloads the HTML rendering and returns its article text.
// The download is best effort: any failure yields an empty string so callers fall back to the abstract.
// Rate limits and network errors back off exponentially; other HTTP statuses retry after the fixed delay.
func (client *Client) FetchHTMLText(executionContext context.Context, identifier string) string {
	htmlURL := client.HTMLURL(identifier)
	policy := client.htmlPolicy
	policy.OnRetry = client.retryLogger(htmlRetryLogMessageConstant, zap.String(logFieldIdentifierConstant, identifier), zap.String(logFieldRequestKindConstant, requestKindHTMLConstant))

	var articleText string
	downloadError := retry.Do(executionContext, policy, func(attemptContext context.Context, _ int) error {
		body, requestError := client.get(attemptContext, client.htmlLimiter, htmlURL)
		if requestError != nil {
			var statusError HTTPStatusError
			if errors.As(requestError, &statusError) && statusError.StatusCode != http.StatusTooManyRequests {
				return retry.Steady(requestError)
			}
			return requestError
		}
		defer body.Close()

		extractedText, extractError := ExtractArticleText(body)
		if extractError != nil {
			client.logger.Debug(htmlExtractLogMessageConstant, zap.String(logFieldIdentifierConstant, identifier), zap.Error(extractError))
			return retry.Permanent(extractError)
		}
		articleText = extractedText
		return nil
	})
	if downloadError != nil {
		client.logger.Debug(htmlSkippedLogMessageConstant, zap.String(logFieldIdentifierConstant, identifier), zap.Error(downloadError))
		return ""
	}
	return articleText
}

func (client *Client) fetchFeed(executionContext context.Context, queryValues url.Values, subjectField zap.Field, requestKind string) ([]byte, error) {
	requestURL := client.apiURL + "?" + queryValues.Encode()
	policy := client.queryPolicy
	policy.OnRetry = client.retryLogger(queryRetryLogMessageConstant, subjectField, zap.String(logFieldRequestKindConstant, requestKind))

	var document []byte
	fetchError := retry.Do(executionContext, policy, func(attemptContext context.Context, _ int) error {
		body, requestError := client.get(attemptContext, client.queryLimiter, requestURL)
		if requestError != nil {
			var statusError HTTPStatusError
			if errors.As(requestError, &statusError) && statusError.StatusCode != http.StatusTooManyRequests {
				return retry.Permanent(requestError)
			}
			return requestError
		}
		defer body.Close()

		contents, readError := io.ReadAll(body)
		if readError != nil {
			return fmt.Errorf(responseReadTemplateConstant, readError)
		}
		document = contents
		return nil
	})
	if fetchError != nil {
		return nil, fetchError
	}
	return document, nil
}

// get performs a rate limited GET. Non-200 statuses surface as HTTPStatusError.
func (client *Client) get(executionContext context.Context, limiter *rate.Limiter, requestURL string) (io.ReadCloser, error) {
	if waitError := limiter.Wait(executionContext); waitError != nil {
		return nil, retry.Permanent(fmt.Errorf(limiterWaitTemplateConstant, waitError))
	}

	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, requestURL, nil)
	if requestError != nil {
		return nil, retry.Permanent(fmt.Errorf(requestBuildTemplateConstant, requestError))
	}
	request.Header.Set(userAgentHeaderConstant, client.userAgent)

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return nil, retry.Permanent(contextError)
		}
		return nil, responseError
	}
	if response.StatusCode == http.StatusOK {
		return response.Body, nil
	}

	_, _ = io.Copy(io.Discard, response.Body)
	_ = response.Body.Close()
	return nil, HTTPStatusError{URL: requestURL, StatusCode: response.StatusCode}
}

func (client *Client) retryLogger(message string, fields ...zap.Field) func(int, time.Duration, error) {
	return func(attempt int, wait time.Duration, failure error) {
		retryFields := append([]zap.Field{}, fields...)
		retryFields = append(retryFields,
			zap.Int(logFieldAttemptConstant, attempt+attemptDisplayOffsetConstant),
			zap.Duration(logFieldWaitConstant, wait),
			zap.Error(failure),
		)
		var statusError HTTPStatusError
		if errors.As(failure, &statusError) {
			retryFields = append(retryFields, zap.Int(logFieldStatusCodeConstant, statusError.StatusCode))
		}
		client.logger.Warn(message, retryFields...)
	}
}

func newLimiter(interval time.Duration, fallback time.Duration, disabled bool) *rate.Limiter {
	if disabled {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if interval <= 0 {
		interval = fallback
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func firstNonBlank(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); len(trimmed) > 0 {
		return trimmed
	}
	return fallback
}
