package model

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	tokenIDPrefix = "INF"
	pageIDPrefix  = "PAGE"
	idSuffixLen   = 7
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewTokenID returns an id of the form INF-<base36 millis>-<random>, upper-cased.
func NewTokenID(now time.Time) string {
	return newID(tokenIDPrefix, now)
}

// NewPageID returns an id of the form PAGE-<base36 millis>-<random>, upper-cased.
func NewPageID(now time.Time) string {
	return newID(pageIDPrefix, now)
}

func newID(prefix string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte('-')
	sb.WriteString(strconv.FormatInt(now.UnixMilli(), 36))
	sb.WriteByte('-')
	for range idSuffixLen {
		sb.WriteByte(base36[rand.IntN(len(base36))])
	}
	return strings.ToUpper(sb.String())
}
