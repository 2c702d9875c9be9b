// Package ratelimit bounds login and refresh attempts per client.
//
// Each (client, action) pair gets a fixed window starting at its first
// attempt. Check consumes an attempt and refuses once the window's budget is
// spent. RecordFailure escalates: when failures alone reach the budget the
// entry is locked for the action's block duration, which is longer than the
// window.
package ratelimit
