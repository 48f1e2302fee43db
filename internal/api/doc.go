// Package api serves the admin REST API for backups, tenant snapshots and
// tenant restores under /api/v1. The operator's name is taken from the
// X-Actor header and recorded on every job it creates.
package api
