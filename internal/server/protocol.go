package server

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const greeting = "OK Connected. Commands: CREATE <name>, WRITE <name> <hex>, READ <name>, DELETE <name>, LIST, HELP, QUIT"

const helpText = "Commands: CREATE <name>, WRITE <name> <hex>, READ <name>, DELETE <name>, LIST, HELP, QUIT"

var whitespace = regexp.MustCompile(`\s+`)

// parseCommand splits a line into at most three whitespace-separated
// tokens: verb, name, payload. The payload itself may contain further
// whitespace and is never split further.
func parseCommand(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}
	return whitespace.Split(trimmed, 3)
}

func decodeHexPayload(s string, maxBytes int) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex payload must have even length")
	}
	if len(s)/2 > maxBytes {
		return nil, fmt.Errorf("payload exceeds maximum of %d bytes", maxBytes)
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %v", err)
	}
	return data, nil
}

func encodeHexPayload(data []byte) string {
	return hex.EncodeToString(data)
}
