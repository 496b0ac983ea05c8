package barchart

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bcgrab/pkg/errors"
	"bcgrab/pkg/market"
)

const loginPage = `<html><body><form method="post">
<input type="hidden" name="_token" value="token-123">
<input name="email"><input name="password">
</form></body></html>`

const downloadPage = `<html><head>
<meta name="csrf-token" content="page-token-456">
</head><body>download</body></html>`

// newTestServer stands up a fake price service. rejectLogin bounces the
// credential post back to the login page; exhausted makes the allowance
// check report the quota as spent; noData makes the download endpoint
// return the vendor's error string.
func newTestServer(t *testing.T, rejectLogin, exhausted, noData bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, loginPage)
			return
		}
		if rejectLogin {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/my/dashboard", http.StatusFound)
	})
	mux.HandleFunc("/my/dashboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>dashboard</html>")
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>bye</html>")
	})

	mux.HandleFunc("/futures/quotes/GCM20/historical-download", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "xsrf-1"})
		fmt.Fprint(w, downloadPage)
	})
	mux.HandleFunc("/futures/quotes/BADSYM/historical-download", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	mux.HandleFunc("/my/download", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Header.Get("x-xsrf-token") == "" {
			t.Error("download request carried no XSRF token")
		}
		if r.PostForm.Get("onlyCheckPermissions") == "true" {
			http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "xsrf-2"})
			if exhausted {
				fmt.Fprint(w, `{"error":{"code":205},"success":false,"count":250}`)
				return
			}
			fmt.Fprint(w, `{"error":null,"success":true,"count":7}`)
			return
		}
		if noData {
			fmt.Fprint(w, "Error retrieving data: no results")
			return
		}
		assert.Equal(t, "page-token-456", r.PostForm.Get("_token"))
		assert.Equal(t, "GCM20", r.PostForm.Get("symbol"))
		assert.NotEmpty(t, r.PostForm.Get("startDate"))
		fmt.Fprint(w, "Time,Open,High,Low,Last,Volume\n2020-05-01,1700,1720,1690,1710,100\n2020-05-04,1710,1730,1700,1725,200\n")
	})

	return httptest.NewServer(mux)
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(baseURL, "test-agent", 5*time.Second, nil)
}

func TestLogin(t *testing.T) {
	server := newTestServer(t, false, false, false)
	defer server.Close()

	client := testClient(t, server.URL)
	require.NoError(t, client.Login(context.Background(), "user@example.com", "secret"))
	require.NoError(t, client.Logout(context.Background()))
}

func TestLoginRejected(t *testing.T) {
	server := newTestServer(t, true, false, false)
	defer server.Close()

	client := testClient(t, server.URL)
	err := client.Login(context.Background(), "user@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAuth))
}

func TestLoginMissingCredentials(t *testing.T) {
	client := testClient(t, "http://localhost:1")
	err := client.Login(context.Background(), "", "")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAuth))
}

func TestFetch(t *testing.T) {
	server := newTestServer(t, false, false, false)
	defer server.Close()

	client := testClient(t, server.URL)
	result, err := client.Fetch(context.Background(), "GCM20",
		time.Date(2020, time.February, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.June, 30, 0, 0, 0, 0, time.UTC),
		market.Daily)
	require.NoError(t, err)
	require.Len(t, result.Series, 2)
	assert.Equal(t, 7, result.AllowanceUsed)
	assert.Equal(t, 1710.0, result.Series[0].Close)
}

func TestFetchAllowanceExhausted(t *testing.T) {
	server := newTestServer(t, false, true, false)
	defer server.Close()

	client := testClient(t, server.URL)
	result, err := client.Fetch(context.Background(), "GCM20",
		time.Date(2020, time.February, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.June, 30, 0, 0, 0, 0, time.UTC),
		market.Daily)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrAllowanceExhausted))
	assert.Equal(t, 250, result.AllowanceUsed)
}

func TestFetchNoData(t *testing.T) {
	server := newTestServer(t, false, false, true)
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.Fetch(context.Background(), "GCM20",
		time.Date(2020, time.February, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.June, 30, 0, 0, 0, 0, time.UTC),
		market.Daily)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindEmptyData))
}

func TestFetchUnknownSymbol(t *testing.T) {
	server := newTestServer(t, false, false, false)
	defer server.Close()

	client := testClient(t, server.URL)
	_, err := client.Fetch(context.Background(), "BADSYM",
		time.Date(2020, time.February, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.June, 30, 0, 0, 0, 0, time.UTC),
		market.Daily)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindEmptyData))
}

func TestEndpoints(t *testing.T) {
	e := newEndpoints("https://example.com")
	assert.Equal(t, "https://example.com/login", e.login())
	assert.Equal(t, "https://example.com/my/download", e.download())
	assert.Equal(t, "https://example.com/futures/quotes/GCM20/historical-download", e.historicalPage("GCM20"))
}
