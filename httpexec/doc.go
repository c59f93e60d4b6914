// Package httpexec implements netq.Transport over plain HTTP/1.1 connections.
//
// The response parser is deliberately lenient: header lines with a missing value, spaces in the
// name or non-printable bytes are passed through verbatim. A header line carrying a bare carriage
// return is treated as an injection attempt and fails the exchange with ErrHeaderInjection.
//
// Every exchange dials its own connection and closes it afterwards. DNS, connect/TLS and
// request/response phases are timed separately so that timeouts can report where time was spent.
// Redirects are followed up to a configurable limit and HTTP proxies are honored for both plain
// (absolute-form requests) and TLS (CONNECT tunnel) targets.
//
// Error messages are recorded in responses as-is, so the sentinel errors carry the wording
// operators search for in logs ("Couldn't connect to server", "Weird server reply", ...).
package httpexec
