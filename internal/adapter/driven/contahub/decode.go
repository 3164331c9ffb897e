package contahub

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/ericfisherdev/barsync/internal/domain/model"
)

// sessionExpiredMessage is the bare JSON string ContaHub answers with when the
// session cookie is missing or stale.
const sessionExpiredMessage = "Sem sessão"

// listKeys are the object keys ContaHub wraps record lists in, in lookup order.
var listKeys = []string{"list", "items"}

// decodeRecords interprets a query response body. It accepts a bare array, an
// object wrapping the array under one of listKeys, an empty object, null or an
// empty body. The session sentinel string yields model.ErrSessionExpired. Any
// other shape yields model.ErrUnexpectedResponse.
func decodeRecords(body []byte) ([]stdjson.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		return decodeArray(trimmed)

	case '{':
		var obj map[string]stdjson.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrUnexpectedResponse, err)
		}
		if len(obj) == 0 {
			return nil, nil
		}
		for _, key := range listKeys {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			raw = bytes.TrimSpace(raw)
			if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
				return nil, nil
			}
			return decodeArray(raw)
		}
		return nil, fmt.Errorf("%w: object without list field (keys: %s)",
			model.ErrUnexpectedResponse, strings.Join(objectKeys(obj), ","))

	case '"':
		var msg string
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrUnexpectedResponse, err)
		}
		if isSessionExpired(msg) {
			return nil, model.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: vendor message %q", model.ErrUnexpectedResponse, truncate(msg, 200))
	}

	return nil, fmt.Errorf("%w: body starts with %q", model.ErrUnexpectedResponse, truncate(string(trimmed), 40))
}

func decodeArray(raw []byte) ([]stdjson.RawMessage, error) {
	var records []stdjson.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUnexpectedResponse, err)
	}
	return records, nil
}

func isSessionExpired(msg string) bool {
	msg = strings.TrimSpace(msg)
	return strings.EqualFold(msg, sessionExpiredMessage) || strings.EqualFold(msg, "Sem sessao")
}

func objectKeys(obj map[string]stdjson.RawMessage) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
