package trainingstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/flowbit/vanna/internal/observability"
)

const (
	// ModelName identifies the training data set shared by the service and the training script.
	ModelName = "flowbit_vanna_model"
	Extension = ".chromem"
)

// PathFor returns the vector store location inside dir.
func PathFor(dir string) string {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return filepath.Join(dir, ModelName+Extension)
}

var ErrNotFound = errors.New("training example not found")

type Kind string

const (
	KindSQL           Kind = "sql"
	KindDDL           Kind = "ddl"
	KindDocumentation Kind = "documentation"
)

var kinds = []Kind{KindSQL, KindDDL, KindDocumentation}

func (k Kind) idSuffix() string {
	switch k {
	case KindSQL:
		return "-sql"
	case KindDDL:
		return "-ddl"
	default:
		return "-doc"
	}
}

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindSQL:
		return KindSQL, nil
	case KindDDL:
		return KindDDL, nil
	case KindDocumentation, "doc":
		return KindDocumentation, nil
	default:
		return "", fmt.Errorf("unknown training kind %q", raw)
	}
}

func kindFromID(id string) (Kind, bool) {
	for _, kind := range kinds {
		if strings.HasSuffix(id, kind.idSuffix()) {
			return kind, true
		}
	}
	return "", false
}

// Example is one stored unit of training data. Question and SQL are set for
// KindSQL, Content for KindDDL and KindDocumentation.
type Example struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"training_data_type"`
	Question string  `json:"question,omitempty"`
	SQL      string  `json:"sql,omitempty"`
	Content  string  `json:"content,omitempty"`
	Score    float32 `json:"-"`
}

// ExampleID derives a stable ID from the example's content.
func ExampleID(kind Kind, parts ...string) string {
	name := strings.Join(parts, "\x00")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String() + kind.idSuffix()
}

func (e Example) text() string {
	if e.Kind == KindSQL {
		return e.Question
	}
	return e.Content
}

func (e Example) validate() error {
	switch e.Kind {
	case KindSQL:
		if strings.TrimSpace(e.Question) == "" || strings.TrimSpace(e.SQL) == "" {
			return fmt.Errorf("question and sql are required")
		}
	case KindDDL, KindDocumentation:
		if strings.TrimSpace(e.Content) == "" {
			return fmt.Errorf("%s content is required", e.Kind)
		}
	default:
		return fmt.Errorf("unknown training kind %q", e.Kind)
	}
	return nil
}

type Config struct {
	Path     string
	Compress bool
	Embedder chromem.EmbeddingFunc
	// NResults caps how many examples each retrieval returns.
	NResults int
	Logger   *slog.Logger
}

// Store keeps training examples in a persistent chromem database with one collection per kind.
type Store struct {
	db          *chromem.DB
	collections map[Kind]*chromem.Collection
	embed       chromem.EmbeddingFunc
	nResults    int
	logger      *slog.Logger

	writeMu sync.Mutex
}

func Open(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	embed := cfg.Embedder
	if embed == nil {
		embed = HashEmbedding(defaultHashDimensions)
	}
	nResults := cfg.NResults
	if nResults <= 0 {
		nResults = 10
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("open training store %q: %w", cfg.Path, err)
	}
	collections := make(map[Kind]*chromem.Collection, len(kinds))
	for _, kind := range kinds {
		collection, err := db.GetOrCreateCollection(string(kind), map[string]string{"model": ModelName}, embed)
		if err != nil {
			return nil, fmt.Errorf("open %s collection: %w", kind, err)
		}
		collections[kind] = collection
	}
	return &Store{
		db:          db,
		collections: collections,
		embed:       embed,
		nResults:    nResults,
		logger:      logger,
	}, nil
}

func (s *Store) AddQuestionSQL(ctx context.Context, question, sql string) (string, error) {
	return s.Put(ctx, Example{Kind: KindSQL, Question: question, SQL: sql})
}

func (s *Store) AddDDL(ctx context.Context, ddl string) (string, error) {
	return s.Put(ctx, Example{Kind: KindDDL, Content: ddl})
}

func (s *Store) AddDocumentation(ctx context.Context, documentation string) (string, error) {
	return s.Put(ctx, Example{Kind: KindDocumentation, Content: documentation})
}

// Put stores the example, replacing any example with the same ID. An empty ID is derived from content.
func (s *Store) Put(ctx context.Context, example Example) (string, error) {
	example.Question = strings.TrimSpace(example.Question)
	example.SQL = strings.TrimSpace(example.SQL)
	example.Content = strings.TrimSpace(example.Content)
	if err := example.validate(); err != nil {
		return "", err
	}
	if example.ID == "" {
		if example.Kind == KindSQL {
			example.ID = ExampleID(KindSQL, example.Question, example.SQL)
		} else {
			example.ID = ExampleID(example.Kind, example.Content)
		}
	}
	collection := s.collections[example.Kind]

	doc := chromem.Document{
		ID:      example.ID,
		Content: example.text(),
		Metadata: map[string]string{
			"kind":     string(example.Kind),
			"question": example.Question,
			"sql":      example.SQL,
		},
	}

	// Same ID overwrites, so re-training identical content never duplicates.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := collection.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("add %s training example: %w", example.Kind, err)
	}
	observability.ObserveTrainingExample(string(example.Kind))
	s.logger.DebugContext(ctx, "training_example_added",
		slog.String("id", example.ID),
		slog.String("kind", string(example.Kind)),
	)
	return example.ID, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	kind, ok := kindFromID(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	collection := s.collections[kind]

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := collection.GetByID(ctx, id); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("remove training example %s: %w", id, err)
	}
	return nil
}

func (s *Store) SimilarQuestionSQL(ctx context.Context, question string) ([]Example, error) {
	return s.related(ctx, KindSQL, question)
}

func (s *Store) RelatedDDL(ctx context.Context, question string) ([]Example, error) {
	return s.related(ctx, KindDDL, question)
}

func (s *Store) RelatedDocumentation(ctx context.Context, question string) ([]Example, error) {
	return s.related(ctx, KindDocumentation, question)
}

func (s *Store) related(ctx context.Context, kind Kind, text string) ([]Example, error) {
	collection := s.collections[kind]
	n := min(s.nResults, collection.Count())
	if n == 0 {
		return nil, nil
	}
	results, err := collection.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s examples: %w", kind, err)
	}
	return toExamples(kind, results), nil
}

// List returns every stored example ordered by kind and ID.
func (s *Store) List(ctx context.Context) ([]Example, error) {
	var probe []float32
	examples := make([]Example, 0)
	for _, kind := range kinds {
		collection := s.collections[kind]
		count := collection.Count()
		if count == 0 {
			continue
		}
		if probe == nil {
			embedding, err := s.embed(ctx, string(kind))
			if err != nil {
				return nil, fmt.Errorf("embed list probe: %w", err)
			}
			probe = embedding
		}
		results, err := collection.QueryEmbedding(ctx, probe, count, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("list %s examples: %w", kind, err)
		}
		batch := toExamples(kind, results)
		sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
		examples = append(examples, batch...)
	}
	return examples, nil
}

// Len returns the number of stored examples across all kinds.
func (s *Store) Len() int {
	total := 0
	for _, collection := range s.collections {
		total += collection.Count()
	}
	return total
}

func toExamples(kind Kind, results []chromem.Result) []Example {
	examples := make([]Example, 0, len(results))
	for _, result := range results {
		example := Example{ID: result.ID, Kind: kind, Score: result.Similarity}
		if kind == KindSQL {
			example.Question = result.Metadata["question"]
			example.SQL = result.Metadata["sql"]
		} else {
			example.Content = result.Content
		}
		examples = append(examples, example)
	}
	return examples
}
