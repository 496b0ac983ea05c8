package barchart

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"bcgrab/pkg/errors"
	"bcgrab/pkg/logger"
	"bcgrab/pkg/market"
)

// ErrAllowanceExhausted is returned when the server reports the account's
// daily download limit has been reached. The run stops on it.
var ErrAllowanceExhausted = stderrors.New("daily download allowance exhausted")

// Fetcher retrieves historical prices for one contract symbol. The runner
// depends on this interface, not on the concrete client.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time, freq market.Frequency) (Result, error)
}

// Result is one fetch outcome: the parsed series plus the server-reported
// allowance usage after the request (0 when the server did not say).
type Result struct {
	Series        market.Series
	AllowanceUsed int
}

// Client is an authenticated session against the price service.
type Client struct {
	httpClient *http.Client
	endpoints  endpoints
	userAgent  string
	logger     logger.Logger
}

// NewClient creates a client with a fresh cookie jar. Call Login before
// fetching.
func NewClient(baseURL, userAgent string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0"
	}
	jar, _ := cookiejar.New(nil)
	return &Client{
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		endpoints:  newEndpoints(baseURL),
		userAgent:  userAgent,
		logger:     log,
	}
}

// Login authenticates the session: it scrapes the CSRF token from the
// login page and posts the credentials. A response that lands back on the
// login page means the credentials were rejected.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errors.New(errors.KindAuth, "credentials are required")
	}

	resp, err := c.get(ctx, c.endpoints.login(), nil)
	if err != nil {
		return errors.Wrap(errors.KindAuth, err, "failed to load login page")
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return errors.Wrap(errors.KindAuth, err, "failed to parse login page")
	}
	token, ok := doc.Find(`input[type="hidden"]`).First().Attr("value")
	if !ok || token == "" {
		return errors.New(errors.KindAuth, "login page carried no CSRF token")
	}

	form := url.Values{
		"email":    {username},
		"password": {password},
		"_token":   {token},
	}
	loginResp, err := c.postForm(ctx, c.endpoints.login(), form, nil)
	if err != nil {
		return errors.Wrap(errors.KindAuth, err, "login request failed")
	}
	defer loginResp.Body.Close()
	io.Copy(io.Discard, loginResp.Body)

	if loginResp.Request.URL.String() == c.endpoints.login() {
		return errors.New(errors.KindAuth, "invalid credentials for %s", username)
	}

	c.logger.WithField("username", username).Info("session established")
	return nil
}

// Logout ends the session. Failures are not fatal; the session cookie
// expires server-side anyway.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.get(ctx, c.endpoints.logout(), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	c.logger.Debug("session closed")
	return nil
}

// allowanceReply is the JSON shape of the download permission check.
type allowanceReply struct {
	Error   interface{} `json:"error"`
	Success bool        `json:"success"`
	Count   int         `json:"count"`
}

// Fetch downloads the historical series for one contract. It distinguishes
// a legitimate empty result (KindEmptyData) from transport failures
// (KindFetch) and from an exhausted allowance (ErrAllowanceExhausted).
func (c *Client) Fetch(ctx context.Context, symbol string, start, end time.Time, freq market.Frequency) (Result, error) {
	pageURL := c.endpoints.historicalPage(symbol)
	pageResp, err := c.get(ctx, pageURL, nil)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindFetch, err, "failed to open download page for %s", symbol)
	}
	defer pageResp.Body.Close()

	if pageResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, pageResp.Body)
		return Result{}, errors.New(errors.KindEmptyData, "no downloadable data for %s (status %d)", symbol, pageResp.StatusCode)
	}

	xsrf := cookieValue(pageResp, "XSRF-TOKEN")
	doc, err := goquery.NewDocumentFromReader(pageResp.Body)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindFetch, err, "failed to parse download page for %s", symbol)
	}
	pageToken, _ := doc.Find(`meta[name="csrf-token"]`).Attr("content")
	if pageToken == "" {
		return Result{}, errors.New(errors.KindFetch, "download page for %s carried no CSRF token", symbol)
	}

	// Check permissions before spending a download.
	headers := map[string]string{
		"Referer":      pageURL,
		"x-xsrf-token": xsrf,
	}
	checkResp, err := c.postForm(ctx, c.endpoints.download(), url.Values{"onlyCheckPermissions": {"true"}}, headers)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindFetch, err, "allowance check failed for %s", symbol)
	}
	body, err := io.ReadAll(checkResp.Body)
	checkResp.Body.Close()
	if err != nil {
		return Result{}, errors.Wrap(errors.KindFetch, err, "allowance check failed for %s", symbol)
	}

	var allowance allowanceReply
	if err := json.Unmarshal(body, &allowance); err != nil {
		return Result{}, errors.Wrap(errors.KindFetch, err, "allowance reply unreadable for %s", symbol)
	}
	if allowance.Error != nil {
		return Result{AllowanceUsed: allowance.Count}, ErrAllowanceExhausted
	}
	logger.LogAllowance(allowance.Count, allowance.Success)

	// The permission reply rotates the XSRF token.
	if v := cookieValue(checkResp, "XSRF-TOKEN"); v != "" {
		headers["x-xsrf-token"] = v
	}

	form := url.Values{
		"_token":     {pageToken},
		"fileName":   {symbol + "_Daily_Historical Data"},
		"symbol":     {symbol},
		"fields":     {"tradeTime.format(Y-m-d),openPrice,highPrice,lowPrice,lastPrice,volume"},
		"startDate":  {start.Format("2006-01-02")},
		"endDate":    {end.Format("2006-01-02")},
		"orderBy":    {"tradeTime"},
		"orderDir":   {"asc"},
		"method":     {"historical"},
		"limit":      {"20000"},
		"customView": {"true"},
		"pageTitle":  {"Historical Data"},
	}
	if freq == market.Hourly {
		form.Set("type", "minutes")
		form.Set("interval", "60")
	} else {
		form.Set("type", "eod")
		form.Set("period", "daily")
	}

	dlResp, err := c.postForm(ctx, c.endpoints.download(), form, headers)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindFetch, err, "download failed for %s", symbol)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, dlResp.Body)
		return Result{}, errors.New(errors.KindFetch, "download for %s returned status %d", symbol, dlResp.StatusCode)
	}

	payload, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindFetch, err, "download body unreadable for %s", symbol)
	}
	if strings.Contains(string(payload), "Error retrieving data") {
		return Result{AllowanceUsed: allowance.Count}, errors.New(errors.KindEmptyData, "service reported no data for %s", symbol)
	}

	series, err := ParseCSV(payload, freq)
	if err != nil {
		return Result{AllowanceUsed: allowance.Count}, err
	}

	c.logger.DebugWithFields("series fetched", map[string]interface{}{
		"symbol":    symbol,
		"frequency": freq.String(),
		"rows":      len(series),
	})
	return Result{Series: series, AllowanceUsed: allowance.Count}, nil
}

func (c *Client) get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, headers)
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, headers)
}

func (c *Client) do(req *http.Request, headers map[string]string) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, err
	}
	logger.LogRequest(req.Method, req.URL.String(), resp.StatusCode, float64(duration.Milliseconds()))

	// The service throttles hard once its request budget runs low; back off
	// before it starts rejecting.
	if rem := ratelimitRemaining(resp); rem >= 0 && rem <= 15 {
		c.logger.WithField("remaining", rem).Warn("service rate limit nearly exhausted, pausing")
		time.Sleep(20 * time.Second)
	}
	return resp, nil
}

// cookieValue returns the URL-decoded value of a Set-Cookie entry on the
// response.
func cookieValue(resp *http.Response, name string) string {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			if v, err := url.QueryUnescape(cookie.Value); err == nil {
				return v
			}
			return cookie.Value
		}
	}
	return ""
}

// ratelimitRemaining parses the service's remaining-request header, -1 if
// absent.
func ratelimitRemaining(resp *http.Response) int {
	v := resp.Header.Get("x-ratelimit-remaining")
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
