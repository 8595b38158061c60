package redis

import "strings"

// Redis key naming conventions for choreo data.
// All keys are prefixed with "choreo:" to avoid collisions.

const keyPrefix = "choreo:"

// Hash fields of a document key.
const (
	fieldBody = "body"
	fieldRev  = "rev"
)

// docKey returns the Hash key for a document: choreo:doc:{id}
func docKey(id string) string { return keyPrefix + "doc:" + id }

// indexKey is the Sorted Set of every document id, all scored 0 so that
// ZRANGEBYLEX walks them in id order.
const indexKey = keyPrefix + "docs"

// channelPrefix prefixes the Pub/Sub channel of each document.
const channelPrefix = keyPrefix + "feed:"

// channel returns the Pub/Sub channel for a document: choreo:feed:{id}
func channel(id string) string { return channelPrefix + id }

// pattern returns the PSUBSCRIBE pattern matching every document under prefix.
func pattern(prefix string) string { return channelPrefix + globEscape(prefix) + "*" }

// lexRange returns the ZRANGEBYLEX bounds covering ids that start with prefix.
func lexRange(prefix string) (string, string) {
	if prefix == "" {
		return "-", "+"
	}
	return "[" + prefix, "[" + prefix + "\xff"
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func globEscape(s string) string { return globReplacer.Replace(s) }
