package mysql

import (
	"fmt"
	"strings"
)

const (
	queueSuffix    = "_request_queue"
	responseSuffix = "_response"
	wakeSuffix     = "_wake"
	workerSuffix   = "_worker"
)

// tables holds the sanitized names of every table derived from a prefix.
type tables struct {
	prefix   string
	queue    string
	response string
	wake     string
	worker   string
}

func newTables(prefix string) (tables, error) {
	name, err := sanitizePrefix(prefix)
	if err != nil {
		return tables{}, err
	}

	return tables{
		prefix:   name,
		queue:    name + queueSuffix,
		response: name + responseSuffix,
		wake:     name + wakeSuffix,
		worker:   name + workerSuffix,
	}, nil
}

// sanitizePrefix accepts prefix or schema.prefix made of [A-Za-z0-9_].
func sanitizePrefix(name string) (string, error) {
	if name == "" {
		return "", ErrPrefixRequired
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("%w: %s", ErrInvalidPrefix, name)
	}
	for _, part := range parts {
		if part == "" {
			return "", fmt.Errorf("%w: %s", ErrInvalidPrefix, name)
		}
		for _, r := range part {
			if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}

			return "", fmt.Errorf("%w: %s", ErrInvalidPrefix, name)
		}
	}

	return name, nil
}
