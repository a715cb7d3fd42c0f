// Package testutil contains fakes and builders shared by tests: scripted
// step actions, a recording backoff timer, a journaling session gateway and
// a testify mock gateway. They are not intended for production usage.
package testutil
