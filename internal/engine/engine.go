// Package engine implements the migration orchestrator: folder
// discovery, destination mapping, full-vs-incremental strategy, item
// fan-out and the checkpoint bookkeeping that makes re-runs
// incremental and idempotent.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mholva/gwmigrate/internal/driver"
	"github.com/mholva/gwmigrate/internal/model"
	"github.com/mholva/gwmigrate/internal/queue"
	"github.com/mholva/gwmigrate/internal/store"
)

// Opener resolves an account to a concrete protocol driver. The
// binding from model.Protocol to driver implementation happens once,
// outside the engine.
type Opener func(cfg model.Config, account *model.Account) (driver.Driver, error)

// ProgressEvent reports per-folder progress to an optional observer.
type ProgressEvent struct {
	Folder string
	Stage  string // "start", "done" or "failed"
}

// Options controls a single migration run.
type Options struct {
	// Force ignores stored checkpoints and fingerprints, doing a full
	// resync of every folder.
	Force bool

	// Sync mirrors source deletions at the destination. A run without
	// Sync is additive-only and never deletes.
	Sync bool

	// DryRun enumerates and diffs without touching the destination or
	// the sync state.
	DryRun bool

	// Types restricts the run to the given object types; empty means
	// all migratable types.
	Types []model.ObjectType

	// RemapIdentity rewrites SourceAddress to DestAddress in
	// organizer/attendee fields. Off unless explicitly requested.
	RemapIdentity bool
	SourceAddress string
	DestAddress   string

	// Progress, when set, receives per-folder progress events.
	Progress func(ProgressEvent)
}

// Engine drives migrations. It is stateless and cheap to construct;
// all durable state lives in the sync state store, so any worker can
// pick up any unit of work and a crash loses nothing.
type Engine struct {
	cfg     model.Config
	store   store.Store
	folders queue.Dispatcher
	items   queue.Dispatcher
	open    Opener
	logger  *slog.Logger
}

// New creates an engine. Folder and item jobs run on separate
// dispatchers: a folder job waits on its item jobs, so sharing one
// bounded pool between the two shapes could stall with every worker
// parked on a waiting folder job.
func New(cfg model.Config, st store.Store, folders, items queue.Dispatcher, open Opener, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		store:   st,
		folders: folders,
		items:   items,
		open:    open,
		logger:  logger,
	}
}

// Migrate converges the destination account to match the source
// account per opts. Connection and authentication failures on either
// side abort the run; folder and item failures are accumulated into
// the returned summary.
func (e *Engine) Migrate(ctx context.Context, srcAcct, dstAcct *model.Account, opts Options) (*Summary, error) {
	if len(opts.Types) == 0 {
		opts.Types = model.ParseObjectTypes("")
	}

	src, err := e.open(e.cfg, srcAcct)
	if err != nil {
		return nil, fmt.Errorf("opening source %s: %w", srcAcct.ID(), err)
	}
	defer src.Close()

	dst, err := e.open(e.cfg, dstAcct)
	if err != nil {
		return nil, fmt.Errorf("opening destination %s: %w", dstAcct.ID(), err)
	}
	defer dst.Close()

	srcFolders, err := src.ListFolders(ctx, opts.Types)
	if err != nil {
		return nil, fmt.Errorf("listing source folders: %w", err)
	}

	summary := NewSummary()

	var (
		results []<-chan error
		names   []string
	)
	for _, f := range srcFolders {
		if !f.Kind.Migratable() {
			e.logger.Debug("skipping folder outside migration scope",
				"folder", f.Name, "kind", f.Kind)
			continue
		}
		// Aborting a run stops between folders; submitted folder jobs
		// are allowed to finish.
		if ctx.Err() != nil {
			break
		}

		job := &folderJob{
			id:        uuid.NewString(),
			engine:    e,
			src:       src,
			dst:       dst,
			srcAcctID: srcAcct.ID(),
			folder:    f,
			opts:      opts,
			summary:   summary,
		}
		results = append(results, e.folders.Submit(ctx, job))
		names = append(names, f.Name)
	}

	for i, ch := range results {
		if err := <-ch; err != nil {
			e.logger.Error("folder migration failed", "folder", names[i], "error", err)
			summary.folderFailed(names[i], err.Error())
			emit(opts, ProgressEvent{Folder: names[i], Stage: "failed"})
		}
	}

	if err := e.migrateTags(ctx, src, dst, opts, summary); err != nil {
		summary.folderFailed("tags", err.Error())
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	e.logger.Info("migration run finished",
		"status", summary.Status(),
		"folders", summary.FoldersProcessed,
		"transferred", summary.Transferred,
		"skipped", summary.Skipped,
		"deleted", summary.Deleted,
		"failed", summary.Failed,
	)
	return summary, nil
}

// processFolder runs one folder pass: strategy decision, change
// enumeration, item fan-out, deletion reconciliation and checkpoint
// advance. Returned errors are folder-fatal; the checkpoint is not
// advanced and the job layer may retry the whole pass, which is safe
// because every destination write is an upsert.
func (e *Engine) processFolder(ctx context.Context, j *folderJob) error {
	f := j.folder
	emit(j.opts, ProgressEvent{Folder: f.Name, Stage: "start"})

	parent, name, kind := destinationTarget(f)
	dstFolder, err := j.dst.EnsureFolder(ctx, parent, name, kind)
	if err != nil {
		return &driver.FolderError{Folder: f.Name, Err: fmt.Errorf("ensuring destination folder: %w", err)}
	}

	key := store.FolderKey{
		SourceAccount: j.srcAcctID,
		SourceFolder:  f.ID,
		DestFolder:    dstFolder.ID,
	}

	// Force requests a full listing but keeps the stored fingerprints:
	// a Sync pass still needs them to reconcile deletions, and every
	// transfer overwrites its entry anyway.
	since := ""
	if !j.opts.Force {
		since, err = e.store.GetCheckpoint(ctx, key)
		if err != nil {
			return &driver.FolderError{Folder: f.Name, Err: err}
		}
	}

	changes, err := j.src.ListChanges(ctx, f, since)
	if err != nil {
		return &driver.FolderError{Folder: f.Name, Err: fmt.Errorf("listing changes: %w", err)}
	}

	// Skip items whose last transferred fingerprint matches the
	// source's current one; they are already up to date.
	var pending []model.ItemRef
	for _, ref := range changes.Refs {
		if !j.opts.Force {
			stored, err := e.store.GetFingerprint(ctx, key, ref.UID)
			if err != nil {
				return &driver.FolderError{Folder: f.Name, Err: err}
			}
			if stored != "" && stored == ref.Fingerprint {
				j.summary.itemSkipped()
				continue
			}
		}
		pending = append(pending, ref)
	}

	e.logger.Info("folder pass",
		"folder", f.Name,
		"incremental", since != "",
		"changes", len(changes.Refs),
		"pending", len(pending),
	)

	if err := e.transferPending(ctx, j, key, dstFolder, pending); err != nil {
		return err
	}

	if err := e.reconcileDeletions(ctx, j, key, dstFolder, changes); err != nil {
		return err
	}

	if !j.opts.DryRun {
		if err := e.store.PutCheckpoint(ctx, key, changes.Checkpoint); err != nil {
			return &driver.FolderError{Folder: f.Name, Err: err}
		}
	}

	j.summary.folderProcessed()
	emit(j.opts, ProgressEvent{Folder: f.Name, Stage: "done"})
	return nil
}

// transferPending fans the pending item references out as ItemJob and
// ItemSetJob units. A unit that permanently fails marks only its
// not-yet-fingerprinted items as failed; the folder pass continues.
func (e *Engine) transferPending(ctx context.Context, j *folderJob, key store.FolderKey, dstFolder model.Folder, pending []model.ItemRef) error {
	if j.opts.DryRun {
		for range pending {
			j.summary.itemTransferred()
		}
		return nil
	}

	batch := e.cfg.BatchSize
	if batch <= 0 {
		batch = 25
	}

	var (
		results []<-chan error
		sets    [][]model.ItemRef
	)
	for start := 0; start < len(pending); start += batch {
		end := start + batch
		if end > len(pending) {
			end = len(pending)
		}
		set := pending[start:end]

		var job queue.Job
		if len(set) == 1 {
			job = newItemJob(j, key, dstFolder, set[0])
		} else {
			job = newItemSetJob(j, key, dstFolder, set)
		}
		sets = append(sets, set)
		results = append(results, e.items.Submit(ctx, job))
	}

	for i, ch := range results {
		err := <-ch
		if err == nil {
			continue
		}
		// Retry budget exhausted. Items transferred by earlier
		// attempts carry a fingerprint; the rest failed permanently.
		for _, ref := range sets[i] {
			stored, serr := e.store.GetFingerprint(ctx, key, ref.UID)
			if serr != nil || stored != ref.Fingerprint {
				j.summary.itemFailed(j.folder.Name, ref.UID, err.Error())
			}
		}
	}
	return nil
}

// reconcileDeletions removes destination items whose source item is
// gone. Only a Sync run mirrors deletions; other runs are
// additive-only and keep the state untouched so a later Sync pass can
// still reconcile.
func (e *Engine) reconcileDeletions(ctx context.Context, j *folderJob, key store.FolderKey, dstFolder model.Folder, changes *driver.ChangeSet) error {
	if !j.opts.Sync {
		return nil
	}

	deleted := changes.Deleted
	if changes.Full {
		stored, err := e.store.ListUIDs(ctx, key)
		if err != nil {
			return &driver.FolderError{Folder: j.folder.Name, Err: err}
		}
		present := make(map[string]bool, len(changes.Refs))
		for _, ref := range changes.Refs {
			present[ref.UID] = true
		}
		deleted = deleted[:0:0]
		for _, uid := range stored {
			if !present[uid] {
				deleted = append(deleted, uid)
			}
		}
	}

	for _, uid := range deleted {
		if j.opts.DryRun {
			j.summary.itemDeleted()
			continue
		}
		if err := j.dst.DeleteItem(ctx, dstFolder, uid); err != nil {
			j.summary.itemFailed(j.folder.Name, uid, fmt.Sprintf("deleting: %v", err))
			continue
		}
		if err := e.store.DeleteFingerprint(ctx, key, uid); err != nil {
			return &driver.FolderError{Folder: j.folder.Name, Err: err}
		}
		j.summary.itemDeleted()
	}
	return nil
}

// transferItem moves a single item source-to-destination and records
// its fingerprint once the destination write is confirmed.
func (e *Engine) transferItem(ctx context.Context, j *folderJob, key store.FolderKey, dstFolder model.Folder, ref model.ItemRef) error {
	item, err := j.src.FetchItem(ctx, j.folder, ref)
	if err != nil {
		// The item vanished between listing and fetch; the next pass
		// reconciles it.
		if errors.Is(err, driver.ErrNotFound) {
			return nil
		}
		return &driver.ItemError{UID: ref.UID, Err: fmt.Errorf("fetching: %w", err)}
	}

	if j.opts.RemapIdentity {
		remapIdentity(item, j.opts.SourceAddress, j.opts.DestAddress)
	}

	if _, err := j.dst.WriteItem(ctx, dstFolder, item); err != nil {
		return &driver.ItemError{UID: ref.UID, Err: fmt.Errorf("writing: %w", err)}
	}

	if err := e.store.PutFingerprint(ctx, key, ref.UID, ref.Fingerprint); err != nil {
		return &driver.ItemError{UID: ref.UID, Err: err}
	}

	j.summary.itemTransferred()
	return nil
}

// migrateTags moves tag (relation) objects through the dedicated tag
// path when both sides support it.
func (e *Engine) migrateTags(ctx context.Context, src, dst driver.Driver, opts Options, summary *Summary) error {
	ts, ok := src.(driver.TagSource)
	if !ok {
		return nil
	}
	sink, ok := dst.(driver.TagSink)
	if !ok {
		e.logger.Warn("source has tags but destination cannot store them",
			"destination", dst.Protocol())
		return nil
	}

	tags, err := ts.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("listing tags: %w", err)
	}

	for _, tag := range tags {
		if opts.DryRun {
			summary.tagMigrated()
			continue
		}
		if err := sink.WriteTag(ctx, tag); err != nil {
			summary.itemFailed("tags", tag.Name, err.Error())
			continue
		}
		summary.tagMigrated()
	}
	return nil
}

func emit(opts Options, ev ProgressEvent) {
	if opts.Progress != nil {
		opts.Progress(ev)
	}
}
