// Package crawler implements the identifier-driven crawl: it pulls candidate
// identifiers from a registry.Sequencer, fetches each record through a
// Fetcher, and decides when the registry is exhausted.
package crawler
