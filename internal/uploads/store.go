// Package uploads keeps user-supplied files per investigation and answers
// the query_uploaded_data tool.
package uploads

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultHead    = 20
	maxHead        = 200
	maxSnippets    = 10
	snippetContext = 200
	previewChars   = 2000
)

var ErrFileNotFound = errors.New("uploaded file not found")

// Kind distinguishes tabular data from free text.
type Kind string

const (
	KindTabular  Kind = "tabular"
	KindDocument Kind = "document"
)

// File is one uploaded artifact.
type File struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Kind    Kind       `json:"kind"`
	Columns []string   `json:"columns,omitempty"`
	Rows    [][]string `json:"-"`
	Text    string     `json:"-"`
}

// Store is an in-memory, per-investigation file store.
type Store struct {
	mu    sync.RWMutex
	files map[string]map[string]File
}

func NewStore() *Store {
	return &Store{files: make(map[string]map[string]File)}
}

func (s *Store) Put(investigationID string, f File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.files[investigationID]
	if !ok {
		byID = make(map[string]File)
		s.files[investigationID] = byID
	}
	byID[f.ID] = f
}

func (s *Store) Get(investigationID, fileID string) (File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[investigationID][fileID]
	if !ok {
		return File{}, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	return f, nil
}

// List returns the investigation's files sorted by id.
func (s *Store) List(investigationID string) []File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]File, 0, len(s.files[investigationID]))
	for _, f := range s.files[investigationID] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Drop forgets every file of an investigation.
func (s *Store) Drop(investigationID string) {
	s.mu.Lock()
	delete(s.files, investigationID)
	s.mu.Unlock()
}

// ParseCSV reads a header row followed by data rows.
func ParseCSV(id, name string, r io.Reader) (File, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return File{}, fmt.Errorf("parse csv %s: %w", name, err)
	}
	if len(records) == 0 {
		return File{}, fmt.Errorf("parse csv %s: no header row", name)
	}
	return File{ID: id, Name: name, Kind: KindTabular, Columns: records[0], Rows: records[1:]}, nil
}

// Query answers a query_uploaded_data call. args["file_id"] selects the file.
func (s *Store) Query(investigationID string, args map[string]any) (string, error) {
	fileID := stringArg(args, "file_id")
	if fileID == "" {
		return "", fmt.Errorf("file_id is required")
	}
	f, err := s.Get(investigationID, fileID)
	if err != nil {
		return "", err
	}
	var result any
	if f.Kind == KindTabular {
		result, err = queryTable(f, args)
	} else {
		result = queryDocument(f, args)
	}
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type tableResult struct {
	FileID    string              `json:"file_id"`
	Columns   []string            `json:"columns"`
	Rows      []map[string]string `json:"rows"`
	TotalRows int                 `json:"total_rows"`
	Matched   int                 `json:"matched"`
}

func queryTable(f File, args map[string]any) (tableResult, error) {
	index := make(map[string]int, len(f.Columns))
	for i, c := range f.Columns {
		index[c] = i
	}

	cols := f.Columns
	if requested := stringList(args["columns"]); len(requested) > 0 {
		cols = cols[:0:0]
		for _, c := range requested {
			if _, ok := index[c]; !ok {
				return tableResult{}, fmt.Errorf("unknown column %q", c)
			}
			cols = append(cols, c)
		}
	}

	filterCol := stringArg(args, "filter_column")
	filterOp := stringArg(args, "filter_op")
	if filterOp == "" {
		filterOp = "eq"
	}
	filterVal := fmt.Sprint(valueOr(args["filter_value"], ""))
	filterIdx := -1
	if filterCol != "" {
		i, ok := index[filterCol]
		if !ok {
			return tableResult{}, fmt.Errorf("unknown filter column %q", filterCol)
		}
		filterIdx = i
	}

	head := intArg(args, "head", defaultHead)
	if head <= 0 {
		head = defaultHead
	}
	if head > maxHead {
		head = maxHead
	}

	res := tableResult{FileID: f.ID, Columns: cols, Rows: []map[string]string{}, TotalRows: len(f.Rows)}
	for _, row := range f.Rows {
		if filterIdx >= 0 {
			ok, err := compare(cell(row, filterIdx), filterOp, filterVal)
			if err != nil {
				return tableResult{}, err
			}
			if !ok {
				continue
			}
		}
		res.Matched++
		if len(res.Rows) >= head {
			continue
		}
		out := make(map[string]string, len(cols))
		for _, c := range cols {
			out[c] = cell(row, index[c])
		}
		res.Rows = append(res.Rows, out)
	}
	return res, nil
}

func compare(cellVal, op, want string) (bool, error) {
	a, aErr := strconv.ParseFloat(strings.TrimSpace(cellVal), 64)
	b, bErr := strconv.ParseFloat(strings.TrimSpace(want), 64)
	numeric := aErr == nil && bErr == nil
	switch op {
	case "eq":
		if numeric {
			return a == b, nil
		}
		return cellVal == want, nil
	case "ne":
		if numeric {
			return a != b, nil
		}
		return cellVal != want, nil
	case "contains":
		return strings.Contains(strings.ToLower(cellVal), strings.ToLower(want)), nil
	case "gt", "gte", "lt", "lte":
		var c int
		if numeric {
			switch {
			case a < b:
				c = -1
			case a > b:
				c = 1
			}
		} else {
			c = strings.Compare(cellVal, want)
		}
		switch op {
		case "gt":
			return c > 0, nil
		case "gte":
			return c >= 0, nil
		case "lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	}
	return false, fmt.Errorf("unsupported filter_op %q", op)
}

type documentResult struct {
	FileID   string   `json:"file_id"`
	Query    string   `json:"query,omitempty"`
	Matches  int      `json:"matches"`
	Snippets []string `json:"snippets,omitempty"`
	Preview  string   `json:"preview,omitempty"`
}

func queryDocument(f File, args map[string]any) documentResult {
	query := stringArg(args, "search")
	if query == "" {
		return documentResult{FileID: f.ID, Preview: truncateRunes(f.Text, previewChars)}
	}
	res := documentResult{FileID: f.ID, Query: query}
	lower := strings.ToLower(f.Text)
	needle := strings.ToLower(query)
	for offset := 0; ; {
		i := strings.Index(lower[offset:], needle)
		if i < 0 {
			break
		}
		pos := offset + i
		if pos >= len(f.Text) {
			break
		}
		res.Matches++
		if len(res.Snippets) < maxSnippets {
			start := pos - snippetContext
			if start < 0 {
				start = 0
			}
			end := pos + len(needle) + snippetContext
			if end > len(f.Text) {
				end = len(f.Text)
			}
			res.Snippets = append(res.Snippets, strings.ToValidUTF8(f.Text[start:end], ""))
		}
		offset = pos + len(needle)
	}
	return res
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func valueOr(v, def any) any {
	if v == nil {
		return def
	}
	return v
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err == nil {
			return int(n)
		}
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil {
			return n
		}
	}
	return def
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(list, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}
