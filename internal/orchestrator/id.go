package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/draftsmith/draftsmith/internal/checkpoint"
	derrors "github.com/draftsmith/draftsmith/internal/errors"
)

// maxSlugLen bounds the topic slug inside a run ID.
const maxSlugLen = 40

// NewRunID derives a stable run identifier from the topic and creation
// time: <topic-slug>-<yyyymmdd-hhmmss>.
func NewRunID(topic string, now time.Time) string {
	return fmt.Sprintf("%s-%s", slugify(topic), now.Format("20060102-150405"))
}

// UniqueRunID returns a run ID not already present in the store,
// suffixing a counter on collision.
func UniqueRunID(ctx context.Context, store checkpoint.Store, topic string, now time.Time) (string, error) {
	base := NewRunID(topic, now)
	id := base
	for n := 2; ; n++ {
		_, err := store.Load(ctx, id)
		if derrors.HasCode(err, derrors.CodeCheckpointNotFound) {
			return id, nil
		}
		if err != nil && !derrors.HasCode(err, derrors.CodeCheckpointCorrupted) {
			return "", err
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// slugify lowercases the topic and folds everything but letters and
// digits into single hyphens.
func slugify(topic string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(topic)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "run"
	}
	return slug
}
