// Package snapshot persists the learned schemas to object storage so a
// restarted agent can come up with its registry already filled.
//
// Every Save writes two objects:
//
//	<prefix>/<timestamp>-<uuid>.json   immutable history entry
//	<prefix>/latest.json               what Load reads
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/dataagent/internal/errs"
	"github.com/koustreak/dataagent/internal/filestore"
	"github.com/koustreak/dataagent/internal/logger"
	"github.com/koustreak/dataagent/internal/model"
)

const (
	formatVersion = 1
	latestName    = "latest.json"
	contentType   = "application/json"
	stampLayout   = "20060102T150405Z"
)

// Document is the stored JSON form.
type Document struct {
	Version  int                       `json:"version"`
	ID       string                    `json:"id"`
	TakenAt  time.Time                 `json:"takenAt"`
	Entities []*model.EntityDescriptor `json:"entities"`
}

// Info describes one stored snapshot.
type Info struct {
	ID       string    `json:"id"`
	Key      string    `json:"key"`
	TakenAt  time.Time `json:"takenAt"`
	Entities int       `json:"entities,omitempty"`
}

// Store saves and restores snapshots in one bucket under a key prefix.
type Store struct {
	fs     filestore.Store
	bucket string
	prefix string
	log    *logger.Logger
	now    func() time.Time
	newID  func() string
}

// New creates a Store. prefix defaults to "schemas".
func New(fs filestore.Store, bucket, prefix string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "schemas"
	}
	return &Store{
		fs:     fs,
		bucket: bucket,
		prefix: prefix,
		log:    log.Component("snapshot"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Save writes ds as a new snapshot and points latest.json at it.
func (s *Store) Save(ctx context.Context, ds []*model.EntityDescriptor) (Info, error) {
	if err := s.fs.EnsureBucket(ctx, s.bucket); err != nil {
		return Info{}, err
	}

	doc := Document{
		Version:  formatVersion,
		ID:       s.newID(),
		TakenAt:  s.now().UTC(),
		Entities: ds,
	}
	if doc.Entities == nil {
		doc.Entities = []*model.EntityDescriptor{}
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Info{}, errs.Wrap(errs.ErrKindInvalidInput, "cannot encode snapshot", err)
	}

	key := path.Join(s.prefix, doc.TakenAt.Format(stampLayout)+"-"+doc.ID+".json")
	if err := s.put(ctx, key, body); err != nil {
		return Info{}, err
	}
	if err := s.put(ctx, s.latestKey(), body); err != nil {
		return Info{}, err
	}

	info := Info{ID: doc.ID, Key: key, TakenAt: doc.TakenAt, Entities: len(ds)}
	s.log.InfoWith("schema snapshot saved", map[string]any{"key": key, "entities": len(ds)})
	return info, nil
}

// Load reads the latest snapshot. A missing snapshot is a NotFound error.
func (s *Store) Load(ctx context.Context) ([]*model.EntityDescriptor, Info, error) {
	return s.read(ctx, s.latestKey())
}

// LoadKey reads a specific history entry.
func (s *Store) LoadKey(ctx context.Context, key string) ([]*model.EntityDescriptor, Info, error) {
	return s.read(ctx, key)
}

// List returns the history entries, newest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	objs, err := s.fs.ListObjects(ctx, s.bucket, filestore.ListOptions{Prefix: s.prefix + "/", Recursive: true})
	if err != nil {
		if errs.IsNotFound(err) {
			return []Info{}, nil
		}
		return nil, err
	}

	out := make([]Info, 0, len(objs))
	for _, o := range objs {
		name := path.Base(o.Key)
		if o.IsDir || name == latestName || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, ok := parseName(name)
		if !ok {
			continue
		}
		info.Key = o.Key
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out, nil
}

func (s *Store) latestKey() string { return path.Join(s.prefix, latestName) }

func (s *Store) put(ctx context.Context, key string, body []byte) error {
	return s.fs.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)), contentType)
}

func (s *Store) read(ctx context.Context, key string) ([]*model.EntityDescriptor, Info, error) {
	obj, err := s.fs.GetObject(ctx, s.bucket, key)
	if err != nil {
		return nil, Info{}, err
	}
	defer obj.Close()

	var doc Document
	if err := json.NewDecoder(obj).Decode(&doc); err != nil {
		return nil, Info{}, errs.Wrap(errs.ErrKindInvalidInput, "snapshot is not valid JSON", err)
	}
	if doc.Version != formatVersion {
		return nil, Info{}, errs.Newf(errs.ErrKindInvalidInput, "unsupported snapshot version %d", doc.Version)
	}

	out := make([]*model.EntityDescriptor, 0, len(doc.Entities))
	for _, d := range doc.Entities {
		if d == nil || d.Identifier == "" {
			continue
		}
		out = append(out, d)
	}
	s.log.DebugWith("schema snapshot loaded", map[string]any{"key": key, "entities": len(out)})
	return out, Info{ID: doc.ID, Key: key, TakenAt: doc.TakenAt, Entities: len(out)}, nil
}

// parseName splits "<stamp>-<uuid>.json".
func parseName(name string) (Info, bool) {
	base := strings.TrimSuffix(name, ".json")
	i := strings.IndexByte(base, '-')
	if i < 0 {
		return Info{}, false
	}
	at, err := time.Parse(stampLayout, base[:i])
	if err != nil {
		return Info{}, false
	}
	id := base[i+1:]
	if _, err := uuid.Parse(id); err != nil {
		return Info{}, false
	}
	return Info{ID: id, TakenAt: at}, true
}
