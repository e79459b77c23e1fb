// Package uploader moves pending local images to the external image host
// and merges the results back into a listing's ordered image sequence.
package uploader

import (
	"context"
	"fmt"
	"io"
	"sync"

	"casalista/models"
	"casalista/storage"
)

// PendingFile is a local file waiting to be uploaded. It never persists;
// once uploaded the entry carries PicURL/PublicID instead.
type PendingFile struct {
	Name   string
	Reader io.Reader
	Size   int64
}

// Entry is one slot in a listing's image sequence. An entry is pending iff
// Pending is set and PicURL is empty; a persisted entry passes through
// unchanged.
type Entry struct {
	PicURL          string
	PublicID        string
	DisplayPosition int
	Description     string
	Pending         *PendingFile
}

func (e Entry) IsPending() bool {
	return e.Pending != nil && e.PicURL == ""
}

// Record converts a fully-uploaded entry to its persisted form.
func (e Entry) Record() models.ImageRecord {
	return models.ImageRecord{
		PicURL:             e.PicURL,
		PublicID:           e.PublicID,
		PicDisplayPosition: e.DisplayPosition,
		PicDescription:     e.Description,
	}
}

// FromRecord wraps an already-persisted image for re-submission.
func FromRecord(rec models.ImageRecord) Entry {
	return Entry{
		PicURL:          rec.PicURL,
		PublicID:        rec.PublicID,
		DisplayPosition: rec.PicDisplayPosition,
		Description:     rec.PicDescription,
	}
}

// EntryState is the per-index progress report: Progress runs 0..100 while
// uploading; Err marks that entry failed.
type EntryState struct {
	Progress int
	Err      error
}

type StateFunc func(index int, state EntryState)

// Asset is what the image host hands back for one uploaded file.
type Asset struct {
	SecureURL string
	PublicID  string
}

// ImageHost uploads a single file. Implementations report transfer progress
// through the callback as a 0..100 percentage.
type ImageHost interface {
	Upload(ctx context.Context, name string, r io.Reader, size int64, progress func(pct int)) (Asset, error)
}

// Coordinator uploads the pending entries of a sequence concurrently while
// preserving the sequence order. The whole batch is all-or-nothing at the
// save boundary: any failed entry fails the call, though sibling successes
// keep their uploaded state in the returned slice.
type Coordinator struct {
	host    ImageHost
	journal *storage.JournalStore
}

func NewCoordinator(host ImageHost) *Coordinator {
	return &Coordinator{host: host}
}

// WithJournal records each batch as an upload run in the local journal.
func (c *Coordinator) WithJournal(journal *storage.JournalStore) *Coordinator {
	c.journal = journal
	return c
}

// Upload dispatches every pending entry concurrently and joins on the
// batch. Entries already carrying PicURL are passed through with no network
// calls, so re-invoking with a partially-persisted sequence is safe.
//
// The returned slice always has the same length and order as the input;
// results land by original index, not completion order. onState may be nil.
func (c *Coordinator) Upload(ctx context.Context, entries []Entry, onState StateFunc) ([]Entry, error) {
	report := func(int, EntryState) {}
	if onState != nil {
		// Serialize callbacks so the caller sees one state change at a time.
		var mu sync.Mutex
		report = func(i int, s EntryState) {
			mu.Lock()
			defer mu.Unlock()
			onState(i, s)
		}
	}

	out := make([]Entry, len(entries))
	copy(out, entries)

	pending := 0
	for _, e := range entries {
		if e.IsPending() {
			pending++
		}
	}

	var runID int64
	if c.journal != nil {
		if id, err := c.journal.StartUploadRun(pending); err == nil {
			runID = id
		}
	}

	errs := make([]error, len(entries))
	var wg sync.WaitGroup

	for i := range entries {
		if !out[i].IsPending() {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			file := out[i].Pending
			report(i, EntryState{Progress: 0})

			asset, err := c.host.Upload(ctx, file.Name, file.Reader, file.Size, func(pct int) {
				report(i, EntryState{Progress: pct})
			})
			if err != nil {
				errs[i] = fmt.Errorf("upload %s: %w", file.Name, err)
				report(i, EntryState{Err: errs[i]})
				return
			}

			out[i].PicURL = asset.SecureURL
			out[i].PublicID = asset.PublicID
			out[i].Pending = nil
			report(i, EntryState{Progress: 100})
		}(i)
	}

	wg.Wait()

	var firstErr error
	failedCount := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		failedCount++
		if firstErr == nil {
			firstErr = err
		}
	}

	if c.journal != nil && runID != 0 {
		msg := ""
		if firstErr != nil {
			msg = firstErr.Error()
		}
		if err := c.journal.FinishUploadRun(runID, pending-failedCount, failedCount, msg); err != nil {
			// Journal trouble never blocks the caller.
			_ = err
		}
	}

	if firstErr != nil {
		return out, fmt.Errorf("%d of %d uploads failed: %w", failedCount, pending, firstErr)
	}
	return out, nil
}

// Records converts a fully-uploaded sequence into persisted image records.
// It fails if any entry still lacks a PicURL.
func Records(entries []Entry) ([]models.ImageRecord, error) {
	records := make([]models.ImageRecord, 0, len(entries))
	for i, e := range entries {
		if e.PicURL == "" {
			return nil, fmt.Errorf("image %d has no uploaded URL", i)
		}
		records = append(records, e.Record())
	}
	return records, nil
}
