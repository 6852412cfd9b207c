package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/model"
	"github.com/mholva/gwmigrate/internal/store"
)

// folderJob runs the strategy decision, item fan-out and checkpoint
// advance for one source folder.
type folderJob struct {
	id        string
	engine    *Engine
	src, dst  driver.Driver
	srcAcctID string
	folder    model.Folder
	opts      Options
	summary   *Summary
}

func (j *folderJob) ID() string { return j.id }

func (j *folderJob) Describe() string {
	return fmt.Sprintf("folder %s (%s)", j.folder.Name, j.folder.Kind)
}

func (j *folderJob) Run(ctx context.Context) error {
	return j.engine.processFolder(ctx, j)
}

// itemJob transfers a single item.
type itemJob struct {
	id        string
	parent    *folderJob
	key       store.FolderKey
	dstFolder model.Folder
	ref       model.ItemRef
}

func newItemJob(parent *folderJob, key store.FolderKey, dstFolder model.Folder, ref model.ItemRef) *itemJob {
	return &itemJob{id: uuid.NewString(), parent: parent, key: key, dstFolder: dstFolder, ref: ref}
}

func (j *itemJob) ID() string { return j.id }

func (j *itemJob) Describe() string {
	return fmt.Sprintf("item %s in %s", j.ref.UID, j.parent.folder.Name)
}

func (j *itemJob) Run(ctx context.Context) error {
	e := j.parent.engine

	// A retried attempt may find the item already transferred. Under
	// Force the guard is skipped; replays then re-upsert, which is safe.
	if !j.parent.opts.Force {
		stored, err := e.store.GetFingerprint(ctx, j.key, j.ref.UID)
		if err != nil {
			return err
		}
		if stored != "" && stored == j.ref.Fingerprint {
			return nil
		}
	}

	return e.transferItem(ctx, j.parent, j.key, j.dstFolder, j.ref)
}

// itemSetJob transfers a batch of items as one unit, amortizing the
// per-round-trip cost at the destination. Per-item errors do not stop
// the batch; the job reports an aggregate error so the retry budget
// applies to the remaining items, which the fingerprint guard skips on
// replay once transferred.
type itemSetJob struct {
	id        string
	parent    *folderJob
	key       store.FolderKey
	dstFolder model.Folder
	set       model.ItemSet
}

func newItemSetJob(parent *folderJob, key store.FolderKey, dstFolder model.Folder, refs []model.ItemRef) *itemSetJob {
	return &itemSetJob{id: uuid.NewString(), parent: parent, key: key, dstFolder: dstFolder, set: model.ItemSet{Refs: refs}}
}

func (j *itemSetJob) ID() string { return j.id }

func (j *itemSetJob) Describe() string {
	return fmt.Sprintf("%d items in %s", len(j.set.Refs), j.parent.folder.Name)
}

func (j *itemSetJob) Run(ctx context.Context) error {
	e := j.parent.engine

	var firstErr error
	failed := 0
	for _, ref := range j.set.Refs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !j.parent.opts.Force {
			stored, err := e.store.GetFingerprint(ctx, j.key, ref.UID)
			if err != nil {
				return err
			}
			if stored != "" && stored == ref.Fingerprint {
				continue
			}
		}

		if err := e.transferItem(ctx, j.parent, j.key, j.dstFolder, ref); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return fmt.Errorf("%d of %d items failed: %w", failed, len(j.set.Refs), firstErr)
	}
	return nil
}
