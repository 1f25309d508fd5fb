// Package schemastore keeps table schema documents in a vector collection,
// detecting changed source files by content hash and retrieving the schemas
// most similar to a request.
package schemastore

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"

	"github.com/kyleking/sql-agent/internal/errors"
	"github.com/kyleking/sql-agent/internal/logging"
	"github.com/kyleking/sql-agent/internal/monitor"
	"github.com/kyleking/sql-agent/internal/schema"
	"github.com/kyleking/sql-agent/internal/source"
	"github.com/kyleking/sql-agent/internal/storage"
)

// Metadata keys written with every document
const (
	KeyTableName       = "table_name"
	KeyDescription     = "description"
	KeyBusinessContext = "business_context"
	KeySchemaJSON      = "schema_json"
	KeyContentHash     = "content_hash"
)

// Sync outcome statuses
const (
	StatusNew       = monitor.OutcomeNew
	StatusUpdated   = monitor.OutcomeUpdated
	StatusUnchanged = monitor.OutcomeUnchanged
	StatusError     = monitor.OutcomeError
)

// Outcome reports what Sync did with one definition
type Outcome struct {
	Origin    string
	TableName string
	Status    string
	Err       error
}

// SyncResult counts the outcomes of a Sync
type SyncResult struct {
	New      int
	Updated  int
	Skipped  int
	Errors   int
	Outcomes []Outcome
}

// Total is the number of definitions that made it into the store
func (r SyncResult) Total() int {
	return r.New + r.Updated + r.Skipped
}

func (r SyncResult) String() string {
	return fmt.Sprintf("%d new, %d updated, %d unchanged", r.New, r.Updated, r.Skipped)
}

// Store is the schema store over a storage.Collection
type Store struct {
	collection storage.Collection
	logger     *logging.Logger
}

type Option func(*Store)

// WithLogger replaces the global logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(collection storage.Collection, opts ...Option) *Store {
	s := &Store{collection: collection, logger: logging.GetLogger()}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Upsert stores doc under its table name, replacing any previous version
func (s *Store) Upsert(ctx context.Context, doc schema.Document, contentHash string) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeInternal, "failed to serialize schema %q", doc.TableName)
	}

	metadata := storage.Metadata{
		KeyTableName:       doc.TableName,
		KeyDescription:     doc.Description,
		KeyBusinessContext: doc.BusinessContext,
		KeySchemaJSON:      string(raw),
		KeyContentHash:     contentHash,
	}

	return s.collection.Upsert(ctx, doc.TableName, doc.SearchableText(), metadata)
}

// Sync upserts the definitions that are new or whose content hash changed.
// Per-definition failures are counted and logged; the batch continues.
func (s *Store) Sync(ctx context.Context, defs []source.Definition, forceReload bool) (SyncResult, error) {
	var result SyncResult

	if len(defs) == 0 {
		return result, errors.NewSourceNotFoundError("schema source")
	}

	existing, err := s.ListIdentifiers(ctx)
	if err != nil {
		return result, err
	}

	stored := make(map[string]bool, len(existing))
	for _, id := range existing {
		stored[id] = true
	}

	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome := s.syncOne(ctx, def, stored, forceReload)
		if goerrors.Is(outcome.Err, context.Canceled) || goerrors.Is(outcome.Err, context.DeadlineExceeded) {
			return result, outcome.Err
		}

		switch outcome.Status {
		case StatusNew:
			result.New++
			stored[outcome.TableName] = true
		case StatusUpdated:
			result.Updated++
		case StatusUnchanged:
			result.Skipped++
		default:
			result.Errors++
			s.logger.WithField("origin", outcome.Origin).WithError(outcome.Err).Warn("skipping schema definition")
		}

		monitor.RecordSync(outcome.Status)
		result.Outcomes = append(result.Outcomes, outcome)
	}

	s.logger.WithFields(map[string]interface{}{
		"new":       result.New,
		"updated":   result.Updated,
		"unchanged": result.Skipped,
		"errors":    result.Errors,
	}).Info("schema sync complete")

	return result, nil
}

func (s *Store) syncOne(ctx context.Context, def source.Definition, stored map[string]bool, forceReload bool) Outcome {
	outcome := Outcome{Origin: def.Origin, TableName: def.Document.TableName, Status: StatusError}

	if def.Err != nil {
		outcome.Err = def.Err
		return outcome
	}

	if err := def.Document.Validate(); err != nil {
		outcome.Err = err
		return outcome
	}

	hash := schema.ContentHash(def.Raw)
	isNew := !stored[def.Document.TableName]

	if !isNew && !forceReload {
		storedHash, err := s.storedHash(ctx, def.Document.TableName)
		if err != nil {
			outcome.Err = err
			return outcome
		}

		if storedHash == hash {
			outcome.Status = StatusUnchanged
			return outcome
		}
	}

	if err := s.Upsert(ctx, def.Document, hash); err != nil {
		outcome.Err = err
		return outcome
	}

	outcome.Status = StatusUpdated
	if isNew {
		outcome.Status = StatusNew
	}

	return outcome
}

func (s *Store) storedHash(ctx context.Context, id string) (string, error) {
	records, err := s.collection.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if len(records) == 0 {
		return "", nil
	}

	return records[0].Metadata.String(KeyContentHash), nil
}

// PruneDeleted removes every stored schema whose id is not in currentIDs
func (s *Store) PruneDeleted(ctx context.Context, currentIDs []string) (int, error) {
	existing, err := s.ListIdentifiers(ctx)
	if err != nil {
		return 0, err
	}

	keep := make(map[string]bool, len(currentIDs))
	for _, id := range currentIDs {
		keep[id] = true
	}

	var orphaned []string
	for _, id := range existing {
		if !keep[id] {
			orphaned = append(orphaned, id)
		}
	}

	if len(orphaned) == 0 {
		return 0, nil
	}

	if err := s.collection.Delete(ctx, orphaned...); err != nil {
		return 0, err
	}

	for _, id := range orphaned {
		s.logger.WithField("table", id).Info("removed schema with no source file")
	}

	monitor.RecordPruned(len(orphaned))

	return len(orphaned), nil
}

// Retrieve returns up to topK schemas ranked by similarity to query
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]schema.Document, error) {
	if topK <= 0 {
		return nil, nil
	}

	count, err := s.Count(ctx)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, nil
	}

	matches, err := s.collection.Query(ctx, query, min(topK, count))
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, 0, len(matches))
	for _, m := range matches {
		doc, err := decodeDocument(m.Record)
		if err != nil {
			s.logger.WithField("table", m.ID).WithError(err).Warn("stored schema could not be decoded")
			continue
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// GetByName returns the schema stored for name; absent is not an error
func (s *Store) GetByName(ctx context.Context, name string) (*schema.Document, bool, error) {
	records, err := s.collection.Get(ctx, name)
	if err != nil {
		return nil, false, err
	}

	if len(records) == 0 {
		return nil, false, nil
	}

	doc, err := decodeDocument(records[0])
	if err != nil {
		return nil, false, err
	}

	return &doc, true, nil
}

func (s *Store) ListIdentifiers(ctx context.Context) ([]string, error) {
	records, err := s.collection.List(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}

	return ids, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.collection.Count(ctx)
}

// Clear drops every schema; the store stays usable
func (s *Store) Clear(ctx context.Context) error {
	if err := s.collection.Reset(ctx); err != nil {
		return err
	}

	s.logger.Info("schema store cleared")

	return nil
}

// Inspect returns every stored record with its searchable text and metadata
func (s *Store) Inspect(ctx context.Context) ([]storage.Record, error) {
	return s.collection.List(ctx)
}

func decodeDocument(r storage.Record) (schema.Document, error) {
	raw := r.Metadata.String(KeySchemaJSON)
	if raw == "" {
		return schema.Document{}, errors.NewInvalidSchemaError(r.ID, "stored record has no schema_json")
	}

	return schema.Parse([]byte(raw))
}
