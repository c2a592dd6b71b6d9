package storage

import (
	"context"
	"sync"

	"sheetops/internal/table"
)

// Memory is an in-process Store. Tables are kept in creation order, which
// ListTables reports. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	order      []string
	tables     map[string]*table.Table
	highlights map[string]map[table.Cell]string
}

// NewMemory returns a Memory holding deep copies of tables.
func NewMemory(tables ...*table.Table) *Memory {
	m := &Memory{
		tables:     map[string]*table.Table{},
		highlights: map[string]map[table.Cell]string{},
	}
	for _, t := range tables {
		m.put(t.Clone())
	}
	return m
}

func init() {
	Register("memory", func(context.Context, Config) (Store, error) {
		return NewMemory(), nil
	})
}

func (m *Memory) put(t *table.Table) {
	if _, ok := m.tables[t.Name]; !ok {
		m.order = append(m.order, t.Name)
	}
	t.Normalize()
	m.tables[t.Name] = t
}

func (m *Memory) ListTables(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

func (m *Memory) TableExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tables[name]
	return ok, nil
}

func (m *Memory) ReadTable(ctx context.Context, name string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	if !ok {
		return nil, &table.MissingSourceError{Name: name}
	}
	return t.Clone(), nil
}

func (m *Memory) WriteTable(ctx context.Context, t *table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(t.Clone())
	return nil
}

func (m *Memory) CreateTable(ctx context.Context, name string, columns []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; ok {
		return nil
	}
	m.put(table.New(name, append([]string(nil), columns...)))
	return nil
}

func (m *Memory) AppendRows(ctx context.Context, name string, rows []table.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return &table.MissingSourceError{Name: name}
	}
	for _, r := range rows {
		t.Append(append(table.Row(nil), r...))
	}
	return nil
}

func (m *Memory) SetCellBackground(ctx context.Context, name string, cells []table.Cell, color string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; !ok {
		return &table.MissingSourceError{Name: name}
	}
	h := m.highlights[name]
	if h == nil {
		h = map[table.Cell]string{}
		m.highlights[name] = h
	}
	for _, c := range cells {
		h[c] = color
	}
	return nil
}

// Highlights returns the cell backgrounds set on name.
func (m *Memory) Highlights(name string) map[table.Cell]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[table.Cell]string, len(m.highlights[name]))
	for c, v := range m.highlights[name] {
		out[c] = v
	}
	return out
}

func (m *Memory) Close() error { return nil }
