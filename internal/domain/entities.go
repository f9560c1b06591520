package domain

import (
	"sort"
	"time"
)

// Symbols is the structured form of what an extraction strategy pulls out of a source file.
type Symbols struct {
	Usage     string   `json:"usage,omitempty"`
	Functions []string `json:"functions,omitempty"`
	Classes   []string `json:"classes,omitempty"`
	Variables []string `json:"variables,omitempty"`
	Imports   []string `json:"imports,omitempty"`
}

// Merge concatenates the per-category lists of other onto s. Duplicates are kept.
func (s Symbols) Merge(other Symbols) Symbols {
	out := Symbols{
		Usage:     s.Usage,
		Functions: append(append([]string(nil), s.Functions...), other.Functions...),
		Classes:   append(append([]string(nil), s.Classes...), other.Classes...),
		Variables: append(append([]string(nil), s.Variables...), other.Variables...),
		Imports:   append(append([]string(nil), s.Imports...), other.Imports...),
	}
	switch {
	case out.Usage == "":
		out.Usage = other.Usage
	case other.Usage != "" && other.Usage != out.Usage:
		out.Usage = out.Usage + " " + other.Usage
	}
	return out
}

func (s Symbols) IsEmpty() bool {
	return s.Usage == "" && len(s.Functions) == 0 && len(s.Classes) == 0 &&
		len(s.Variables) == 0 && len(s.Imports) == 0
}

// Names returns every function, class and variable name.
func (s Symbols) Names() []string {
	names := make([]string, 0, len(s.Functions)+len(s.Classes)+len(s.Variables))
	names = append(names, s.Functions...)
	names = append(names, s.Classes...)
	names = append(names, s.Variables...)
	return names
}

// IndexEntry is the persisted record for one source file.
// ContentHash is the only trigger for re-extraction.
type IndexEntry struct {
	Path         string
	Symbols      Symbols
	LastModified float64
	ContentHash  string
}

// Index maps a normalized path to its entry.
type Index map[string]IndexEntry

// Clone returns a shallow copy of the index.
func (idx Index) Clone() Index {
	out := make(Index, len(idx))
	for k, v := range idx {
		out[k] = v
	}
	return out
}

// Entries returns the entries ordered by path.
func (idx Index) Entries() []IndexEntry {
	out := make([]IndexEntry, 0, len(idx))
	for _, e := range idx {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

type SourceFile struct {
	Path    string
	Content string
	ModTime time.Time
}

// Chunk is a line-bounded slice of a source file, used only while extracting.
type Chunk struct {
	SourcePath string
	Seq        int
	StartLine  int
	EndLine    int
	Text       string
	Tokens     int
}

// Stage identifies which part of the selection cascade produced a target file.
type Stage int

const (
	StageHint Stage = iota
	StageQuery
	StageRelated
	StageFallback
)

func (s Stage) String() string {
	switch s {
	case StageHint:
		return "hint"
	case StageQuery:
		return "query"
	case StageRelated:
		return "related"
	case StageFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TargetFile is one element of a filter stage result.
type TargetFile struct {
	Path   string  `json:"path"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
	Hint   bool    `json:"hint,omitempty"`
	Stage  Stage   `json:"stage"`
}

// Relevance is the outcome of scoring one piece of content against a query.
type Relevance struct {
	Score  int    `json:"relevant_score"`
	Reason string `json:"reason"`
}

type CandidateDocument struct {
	Path           string
	Content        string
	Tokens         int
	Score          int
	Reason         string
	RetrievalScore float64
	HighlyRelevant bool
}

// BudgetAllocation partitions TotalLimit. The three quotas sum to TotalLimit.
type BudgetAllocation struct {
	TotalLimit    int `json:"total_limit"`
	FullTextQuota int `json:"full_text_quota"`
	SegmentQuota  int `json:"segment_quota"`
	BufferQuota   int `json:"buffer_quota"`
}

type ContextItem struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`
	Excerpt bool   `json:"excerpt,omitempty"`
	Score   int    `json:"score"`
	Reason  string `json:"reason,omitempty"`
}

type AssembledContext struct {
	ID         string           `json:"id"`
	Query      string           `json:"query"`
	Allocation BudgetAllocation `json:"allocation"`
	Items      []ContextItem    `json:"items"`
	UsedTokens int              `json:"used_tokens"`
	Warnings   []string         `json:"warnings,omitempty"`
}
