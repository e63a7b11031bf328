// Package service connects the engine, watcher and oracle updater to the
// optional infrastructure: Postgres journals, the S3 archive, the Redis
// cache and event bus, and operator alerts.
package service
