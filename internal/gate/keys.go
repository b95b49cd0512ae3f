package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// settingKey addresses the ThresholdSetting of a template.
func settingKey(template string) string { return digest(template + "_setting") }

// counterPrefix is shared by all counter entries of (template, receiver).
func counterPrefix(template, receiver string) string {
	return digest(template+"_"+receiver) + "-"
}

func alertKey(text, receiver string) string { return digest(text) + "-" + receiver }

func markerKey(alertKey string) string { return alertKey + "-expire" }

func withCount(text string, n int64) string {
	return text + "\n count: " + strconv.FormatInt(n, 10)
}
