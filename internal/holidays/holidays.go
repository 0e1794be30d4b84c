// Package holidays loads the exchange holiday table as hot-reloadable
// configuration data, following the teacher's internal/scheduler pattern of
// loading a YAML file at startup with gopkg.in/yaml.v3. The scheduler must
// never hard-code specific years (spec §9 design note).
package holidays

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Table holds the set of exchange holiday dates, keyed "2006-01-02", and
// supports a hot Reload without disturbing readers.
type Table struct {
	mu    sync.RWMutex
	dates map[string]bool
	path  string
}

type fileFormat struct {
	Holidays []string `yaml:"holidays"`
}

// NewEmpty returns a holiday table with no holidays loaded — weekends still
// resolve to CLOSED via the scheduler's own weekday check.
func NewEmpty() *Table {
	return &Table{dates: make(map[string]bool)}
}

// LoadFile loads a holiday table from a YAML file of the form:
//
//	holidays:
//	  - "2026-01-26"
//	  - "2026-03-14"
func LoadFile(path string) (*Table, error) {
	t := &Table{dates: make(map[string]bool), path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the backing file, if any. A Table created with NewEmpty is a
// no-op on Reload.
func (t *Table) Reload() error {
	if t.path == "" {
		return nil
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read holiday table: %w", err)
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return fmt.Errorf("parse holiday table: %w", err)
	}
	dates := make(map[string]bool, len(ff.Holidays))
	for _, d := range ff.Holidays {
		dates[d] = true
	}

	t.mu.Lock()
	t.dates = dates
	t.mu.Unlock()
	return nil
}

// IsHoliday reports whether the given IST wall-clock date is an exchange holiday.
func (t *Table) IsHoliday(day time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dates[day.Format("2006-01-02")]
}
