package barchart

import (
	"fmt"
	"strings"
)

// DefaultBaseURL is the production endpoint of the price service.
const DefaultBaseURL = "https://www.barchart.com/"

type endpoints struct {
	base string
}

func newEndpoints(base string) endpoints {
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return endpoints{base: base}
}

func (e endpoints) login() string {
	return e.base + "login"
}

func (e endpoints) logout() string {
	return e.base + "logout"
}

// historicalPage is the per-contract download page that carries the CSRF
// tokens required by the download endpoint.
func (e endpoints) historicalPage(symbol string) string {
	return fmt.Sprintf("%sfutures/quotes/%s/historical-download", e.base, symbol)
}

func (e endpoints) download() string {
	return e.base + "my/download"
}
