// Package mysql provides the MySQL 8.0+ storage for netq.
//
// Tables are derived from a prefix (default "netq"):
//   - <prefix>_request_queue: queued requests, BIGINT AUTO_INCREMENT ids
//   - <prefix>_response: one row per completed request, purged after expires_at
//   - <prefix>_wake: append-only wake rows, consumed by WakeWatcher
//   - <prefix>_worker: the dispatcher heartbeat row, see Liveness
//
// Queue reads use plain ordered SELECTs without locking, so operators can
// delete or clear queued requests at any time. Store.Complete inserts the
// response and deletes the request in one transaction.
//
// The DSN must set parseTime=true, see NormalizeDSN.
package mysql
