// Package ratelimit paces requests against the price service and accounts
// for the account's daily download allowance.
//
// The token bucket spaces requests out within a run; the Allowance counter
// is the hard per-run ceiling on paid downloads. The server enforces the
// real quota, the local counter just stops a run before it burns the whole
// day's allowance by accident.
package ratelimit
