package telegram

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Telegram caps callback data at 64 bytes, too tight for two 36-char uuids
// plus an action prefix. EncodeID packs a uuid into 22 base64url characters;
// DecodeID reverses it. Values that are not uuids pass through unchanged, so
// the codec is safe to apply to any id.

// EncodeID compresses a uuid string for use inside callback data
func EncodeID(id string) string {
	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) != 32 {
		return id
	}
	raw, err := hex.DecodeString(compact)
	if err != nil {
		return id
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeID restores a uuid string previously compressed with EncodeID
func DecodeID(value string) string {
	if len(value) == 36 && strings.Count(value, "-") == 4 {
		return value
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil || len(raw) != 16 {
		return value
	}
	h := hex.EncodeToString(raw)
	return h[0:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:]
}
