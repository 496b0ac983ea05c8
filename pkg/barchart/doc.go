// Package barchart talks to the subscription price service: it creates an
// authenticated session, checks the account's download allowance and
// fetches historical price CSVs for single futures contracts.
//
// The planner and runner only depend on the Fetcher interface, so tests
// substitute a fake without any network access.
package barchart
