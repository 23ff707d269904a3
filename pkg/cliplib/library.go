// Package cliplib keeps every clip shown in a conversation in a vector
// index so earlier results can be recalled by meaning.
package cliplib

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/killallgit/vidchat/pkg/chat"
	"github.com/killallgit/vidchat/pkg/logger"
	chromem "github.com/philippgille/chromem-go"
)

const defaultCollection = "clips"

type Options struct {
	// Embedding turns clip text into vectors. Required.
	Embedding chromem.EmbeddingFunc
	// PersistDir keeps the index on disk. Empty means in memory only.
	PersistDir string
	Collection string
	// QueueSize bounds the clips waiting to be indexed by Watch.
	QueueSize int
}

// Match is a recalled clip with the question it answered.
type Match struct {
	Clip       chat.ClipResult
	Question   string
	Similarity float32
}

type job struct {
	question string
	clips    []chat.ClipResult
}

type Library struct {
	db         *chromem.DB
	collection *chromem.Collection
	log        *logger.Logger

	mu     sync.Mutex
	seen   map[string]bool
	work   chan job
	closed bool
	wg     sync.WaitGroup
}

func New(opts Options) (*Library, error) {
	if opts.Embedding == nil {
		return nil, fmt.Errorf("embedding function is required")
	}
	if opts.Collection == "" {
		opts.Collection = defaultCollection
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}

	var db *chromem.DB
	var err error
	if opts.PersistDir != "" {
		db, err = chromem.NewPersistentDB(opts.PersistDir, false)
	} else {
		db = chromem.NewDB()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem database: %w", err)
	}

	collection, err := db.GetOrCreateCollection(opts.Collection, nil, opts.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	l := &Library{
		db:         db,
		collection: collection,
		log:        logger.WithComponent("cliplib"),
		seen:       make(map[string]bool),
		work:       make(chan job, opts.QueueSize),
	}
	l.wg.Add(1)
	go l.worker()
	return l, nil
}

// Add indexes clips under the question they answered. Invalid clips are
// skipped; a clip already present is replaced.
func (l *Library) Add(ctx context.Context, question string, clips []chat.ClipResult) error {
	docs := make([]chromem.Document, 0, len(clips))
	for _, clip := range clips {
		if !clip.Valid() {
			continue
		}
		doc, err := toDocument(question, clip)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil
	}

	if err := l.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add clips: %w", err)
	}
	l.log.Debug("Indexed clips", "count", len(docs), "total", l.collection.Count())
	return nil
}

func (l *Library) Count() int {
	return l.collection.Count()
}

// Related returns up to n indexed clips closest in meaning to query, best
// first.
func (l *Library) Related(ctx context.Context, query string, n int) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" || n <= 0 {
		return nil, nil
	}
	n = min(n, l.collection.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := l.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		var clip chat.ClipResult
		if err := json.Unmarshal([]byte(r.Metadata["clip"]), &clip); err != nil {
			l.log.Warn("Skipping unreadable clip", "id", r.ID, "error", err)
			continue
		}
		matches = append(matches, Match{
			Clip:       clip,
			Question:   r.Metadata["question"],
			Similarity: r.Similarity,
		})
	}
	return matches, nil
}

// Watch indexes clips as they get attached to the conversation in store.
// Indexing runs in the background and never blocks the store: when the
// queue is full the clips are skipped until the next state change. The
// returned func stops watching.
func (l *Library) Watch(store *chat.Store) func() {
	return store.Subscribe(func(state chat.ConversationState) {
		for _, msg := range state.Messages {
			if !msg.IsAI() || !msg.HasToolsData() {
				continue
			}
			if fresh := l.unseen(msg.ToolsData); len(fresh) > 0 {
				l.enqueue(job{question: msg.Question, clips: fresh})
			}
		}
	})
}

// Close stops the background indexer after the queued clips are indexed.
func (l *Library) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.work)
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}

func (l *Library) unseen(clips []chat.ClipResult) []chat.ClipResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	var fresh []chat.ClipResult
	for _, clip := range clips {
		key := clip.Key()
		if l.seen[key] {
			continue
		}
		l.seen[key] = true
		fresh = append(fresh, clip)
	}
	return fresh
}

func (l *Library) enqueue(j job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.log.Debug("Dropping clips after close", "count", len(j.clips))
		return
	}
	select {
	case l.work <- j:
	default:
		// Forget the keys so a later state can queue them again.
		for _, clip := range j.clips {
			delete(l.seen, clip.Key())
		}
		l.log.Warn("Index queue full, dropping clips", "count", len(j.clips))
	}
}

func (l *Library) worker() {
	defer l.wg.Done()
	for j := range l.work {
		if err := l.Add(context.Background(), j.question, j.clips); err != nil {
			l.log.Error("Failed to index clips", "error", err, "count", len(j.clips))
		}
	}
}

func toDocument(question string, clip chat.ClipResult) (chromem.Document, error) {
	raw, err := json.Marshal(clip)
	if err != nil {
		return chromem.Document{}, fmt.Errorf("failed to encode clip: %w", err)
	}

	id := clip.Key()
	if clip.ClipID == "" && clip.VideoID == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(clip.VideoURL+"#"+id)).String()
	}

	var parts []string
	for _, s := range []string{clip.VideoTitle, clip.Transcript(), question} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	content := strings.Join(parts, "\n")
	if content == "" {
		content = id
	}

	return chromem.Document{
		ID:      id,
		Content: content,
		Metadata: map[string]string{
			"question":    question,
			"video_id":    clip.VideoID,
			"video_title": clip.VideoTitle,
			"start":       strconv.FormatFloat(clip.Start, 'f', -1, 64),
			"end":         strconv.FormatFloat(clip.End, 'f', -1, 64),
			"clip":        string(raw),
		},
	}, nil
}
