// Package queue carries workflow trigger messages over Redis streams so
// issue runs can be dispatched to worker processes instead of executing in
// the API process.
package queue

import (
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Message is one workflow trigger read from the stream. Attempt counts
// deliveries so poisoned messages end up in the DLQ instead of looping.
type Message struct {
	ID      string
	IssueID string
	Attempt int
	TraceID string
	Raw     redis.XMessage
}

// ParseMessage decodes a raw stream entry. Messages without an issue_id
// are unusable and get acked away by the consumer.
func ParseMessage(msg redis.XMessage) (Message, error) {
	issueID, err := parseString(msg.Values, "issue_id")
	if err != nil {
		return Message{}, err
	}
	if issueID == "" {
		return Message{}, fmt.Errorf("empty issue_id")
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	if attempt <= 0 {
		attempt = 1
	}

	traceID, err := parseOptionalString(msg.Values, "trace_id")
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:      msg.ID,
		IssueID: issueID,
		Attempt: attempt,
		TraceID: traceID,
		Raw:     msg,
	}, nil
}

func messageValues(msg Message, attempt int) map[string]any {
	values := map[string]any{
		"issue_id": msg.IssueID,
		"attempt":  attempt,
	}
	if msg.TraceID != "" {
		values["trace_id"] = msg.TraceID
	}
	return values
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", nil
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	str := fmt.Sprint(raw)
	num, err := strconv.Atoi(str)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}
