// Package fleetagent is a metrics agent for Home Assistant installations.
//
// On a fixed interval the agent samples six categories of metrics:
//   - system: core version, OS, hostname and CPU model
//   - performance: CPU, memory and disk usage plus uptime
//   - entities: entity counts and details of unavailable entities
//   - security: SSL certificate issuer and expiry
//   - database: recorder database size and last purge
//   - backups: Supervisor backup count, size and age
//
// Each category is sampled concurrently with its own timeout. A source that
// fails reports its metrics as unavailable instead of failing the cycle.
// The results are assembled into a versioned payload carrying a persistent
// instance id and delivered over HTTP to a collector, with bounded retries
// and exponential backoff for transient failures.
//
// The agent also serves a local control API to trigger a cycle, read its
// status and self metrics, and fetch the tail of the Home Assistant log.
//
// A reference collector (cmd/server) accepts payloads, verifies their HMAC
// signature, deduplicates retries by idempotency key and stores them in
// memory or PostgreSQL.
//
// Both commands are configured via command-line flags and environment
// variables; the agent also reads a YAML config file.
package fleetagent
