package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type confirmationFragment struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Detail  string `json:"detail"`
}

func (f confirmationFragment) text() string {
	switch {
	case f.Message != "":
		return f.Message
	case f.Detail != "":
		return f.Detail
	case f.Status != "":
		return f.Status
	default:
		return ""
	}
}

// NormalizeConfirmation turns a registry confirmation body into a single
// human-readable message. A strict single-object parse is attempted first;
// when the body holds several concatenated JSON objects the fragments are
// decoded in sequence and their messages merged.
func NormalizeConfirmation(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty confirmation body")
	}

	var single confirmationFragment
	if err := json.Unmarshal(trimmed, &single); err == nil {
		if msg := single.text(); msg != "" {
			return msg, nil
		}
		return "", fmt.Errorf("confirmation carries no message")
	}

	// Concatenated objects: decode the stream fragment by fragment.
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var parts []string
	for {
		var fragment confirmationFragment
		if err := dec.Decode(&fragment); err != nil {
			if errors.Is(err, io.EOF) || len(parts) > 0 {
				break
			}
			return "", fmt.Errorf("decode confirmation fragment: %w", err)
		}
		if msg := fragment.text(); msg != "" && !contains(parts, msg) {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no readable confirmation fragments")
	}
	return strings.Join(parts, "; "), nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
