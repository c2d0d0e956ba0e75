// Package crawler defines the domain types and collaborator interfaces shared
// by the checkpointed listing crawl: checkpoints, listings, page results, and
// the ports the orchestrator drives.
package crawler
