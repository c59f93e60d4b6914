package mysql

import "fmt"

type queries struct {
	insertRequest  string
	selectQueued   string
	requestExists  string
	deleteRequest  string
	clearQueue     string
	countQueued    string
	insertResponse string
	selectResponse string
	purgeExpired   string
	insertWake     string
	maxWake        string
	deleteWake     string
	beat           string
	exit           string
	selectWorker   string
	requestRestart string
	takeRestart    string
}

func newQueries(t tables) queries {
	requestCols := "id, method, url, headers, body, timeout_ms, ttl_ms, principal, created_at"
	responseCols := "id, status, status_code, content_type, headers, content, timed_out, error_msg, " +
		"total_us, dns_us, handshake_us, transfer_us, created_at, expires_at"

	return queries{
		insertRequest: fmt.Sprintf(
			"INSERT INTO %s (method, url, headers, body, timeout_ms, ttl_ms, principal, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			t.queue,
		),
		selectQueued:  fmt.Sprintf("SELECT %s FROM %s WHERE id > ? ORDER BY id ASC LIMIT ?", requestCols, t.queue),
		requestExists: fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)", t.queue),
		deleteRequest: fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.queue),
		// DELETE keeps the AUTO_INCREMENT counter, TRUNCATE would reset it and reuse ids.
		clearQueue:  fmt.Sprintf("DELETE FROM %s", t.queue),
		countQueued: fmt.Sprintf("SELECT COUNT(*) FROM %s", t.queue),
		insertResponse: fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.response,
			responseCols,
		),
		selectResponse: fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", responseCols, t.response),
		purgeExpired:   fmt.Sprintf("DELETE FROM %s WHERE expires_at <= ? ORDER BY expires_at ASC LIMIT ?", t.response),
		insertWake:     fmt.Sprintf("INSERT INTO %s () VALUES ()", t.wake),
		maxWake:        fmt.Sprintf("SELECT MAX(id) FROM %s", t.wake),
		deleteWake:     fmt.Sprintf("DELETE FROM %s WHERE id <= ?", t.wake),
		beat: fmt.Sprintf(
			"INSERT INTO %s (id, instance, started_at, heartbeat_at, exited_at) VALUES (1, ?, ?, ?, NULL) AS new "+
				"ON DUPLICATE KEY UPDATE "+
				"started_at = IF(%s.instance = new.instance AND %s.exited_at IS NULL, %s.started_at, new.started_at), "+
				"instance = new.instance, heartbeat_at = new.heartbeat_at, exited_at = NULL",
			t.worker, t.worker, t.worker, t.worker,
		),
		exit:           fmt.Sprintf("UPDATE %s SET exited_at = ? WHERE id = 1 AND instance = ?", t.worker),
		selectWorker:   fmt.Sprintf("SELECT instance, started_at, heartbeat_at, exited_at, restart_requested FROM %s WHERE id = 1", t.worker),
		requestRestart: fmt.Sprintf("UPDATE %s SET restart_requested = TRUE WHERE id = 1", t.worker),
		takeRestart:    fmt.Sprintf("UPDATE %s SET restart_requested = FALSE WHERE id = 1 AND restart_requested = TRUE", t.worker),
	}
}
