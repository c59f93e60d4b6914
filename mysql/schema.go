package mysql

import (
	"fmt"
	"strings"
)

const queueTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT NOT NULL AUTO_INCREMENT,
	method VARCHAR(16) NOT NULL DEFAULT 'GET',
	url TEXT NOT NULL,
	headers JSON NULL,
	body LONGBLOB NULL,
	timeout_ms INT NOT NULL DEFAULT %d,
	ttl_ms BIGINT NOT NULL DEFAULT %d,
	principal VARCHAR(128) NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id)
)`

const responseTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT NOT NULL,
	status SMALLINT NOT NULL,
	status_code INT NULL,
	content_type VARCHAR(255) NULL,
	headers JSON NULL,
	content LONGBLOB NULL,
	timed_out BOOLEAN NOT NULL DEFAULT FALSE,
	error_msg VARCHAR(1024) NULL,
	total_us BIGINT NOT NULL DEFAULT 0,
	dns_us BIGINT NOT NULL DEFAULT 0,
	handshake_us BIGINT NOT NULL DEFAULT 0,
	transfer_us BIGINT NOT NULL DEFAULT 0,
	created_at DATETIME(6) NOT NULL,
	expires_at DATETIME(6) NOT NULL,
	PRIMARY KEY (id),
	INDEX idx_expires_at (expires_at)
)`

const wakeTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT NOT NULL AUTO_INCREMENT,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id)
)`

const workerTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id TINYINT NOT NULL,
	instance VARCHAR(128) NOT NULL,
	started_at TIMESTAMP(6) NOT NULL,
	heartbeat_at TIMESTAMP(6) NOT NULL,
	exited_at TIMESTAMP(6) NULL,
	restart_requested BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (id)
)`

// SchemaStatements returns one CREATE TABLE statement per table for the prefix.
func SchemaStatements(prefix string) ([]string, error) {
	t, err := newTables(prefix)
	if err != nil {
		return nil, err
	}

	return []string{
		fmt.Sprintf(queueTemplate, t.queue, defaultRequestTimeout.Milliseconds(), defaultResponseTTL.Milliseconds()),
		fmt.Sprintf(responseTemplate, t.response),
		fmt.Sprintf(wakeTemplate, t.wake),
		fmt.Sprintf(workerTemplate, t.worker),
	}, nil
}

// Schema returns the full schema as a single multi-statement script.
func Schema(prefix string) (string, error) {
	statements, err := SchemaStatements(prefix)
	if err != nil {
		return "", err
	}

	return strings.Join(statements, ";\n\n") + ";", nil
}
