// Package archive writes an immutable text snapshot for every detected change.
package archive

import (
	"context"
	"crypto/md5" // #nosec G501 -- used for short stable file names, not security.
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const (
	contentType     = "text/plain; charset=utf-8"
	nameTimeLayout  = "20060102_150405"
	shortHashLength = 12
	noTables        = "(no table detected)"
)

// Archiver renders snapshots and hands them to a create-only BlobStore.
type Archiver struct {
	store monitor.BlobStore
}

// New creates an Archiver on top of store.
func New(store monitor.BlobStore) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	return &Archiver{store: store}, nil
}

// Archive writes the snapshot and returns the store's locator for it.
func (a *Archiver) Archive(ctx context.Context, target monitor.WatchTarget, snap monitor.PageSnapshot) (string, error) {
	name := FileName(target.URL, snap.CapturedAt)
	uri, err := a.store.PutObject(ctx, name, contentType, strings.NewReader(Render(target, snap)))
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", target.URL, err)
	}
	return uri, nil
}

// FileName derives the archive name from the capture time and a short hash of the URL.
func FileName(url string, capturedAt time.Time) string {
	return fmt.Sprintf("%s_%s.txt", capturedAt.UTC().Format(nameTimeLayout), ShortHash(url))
}

// ShortHash returns the first 12 hex characters of the MD5 of s.
func ShortHash(s string) string {
	sum := md5.Sum([]byte(s)) // #nosec G401 -- naming only.
	return hex.EncodeToString(sum[:])[:shortHashLength]
}

// Render produces the fixed archive text block.
func Render(target monitor.WatchTarget, snap monitor.PageSnapshot) string {
	extract := snap.StructuredExtract
	if extract == "" {
		extract = noTables
	}
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", target.URL)
	if target.Group != "" {
		fmt.Fprintf(&b, "Group: %s\n", target.Group)
	}
	fmt.Fprintf(&b, "Date: %s\n", snap.CapturedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Hash: %s\n", snap.Fingerprint)
	b.WriteString("\n=== SCORES ===\n")
	b.WriteString(extract)
	b.WriteString("\n\n=== FULL CONTENT ===\n")
	b.WriteString(snap.NormalizedText)
	b.WriteString("\n")
	return b.String()
}
