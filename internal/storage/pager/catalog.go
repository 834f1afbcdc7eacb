package pager

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
)

// ───────────────────────────────────────────────────────────────────────────
// System catalog — maps object names to B+Tree root pages
// ───────────────────────────────────────────────────────────────────────────
//
// The catalog is itself a B+Tree whose
//   key   = CRC-32C(name), encoded as an 8-byte big-endian u64 (the low 32
//           bits carry the checksum; the high 32 bits disambiguate the rare
//           collision by carrying an incrementing suffix, see put below)
//   value = JSON-encoded CatalogEntry
//
// The catalog root page ID is stored in the DbHeader (RootCatalog). There
// is a single namespace per database file; every DDL-visible object
// (table, index, view, or a scheduled maintenance job) gets one entry,
// distinguished by Kind.

// CatalogKind identifies what kind of object a CatalogEntry describes.
type CatalogKind uint8

const (
	CatalogKindTable CatalogKind = iota
	CatalogKindIndex
	CatalogKindTrigramIndex
	CatalogKindView
	CatalogKindJob
)

func (k CatalogKind) String() string {
	switch k {
	case CatalogKindTable:
		return "table"
	case CatalogKindIndex:
		return "index"
	case CatalogKindTrigramIndex:
		return "trigram_index"
	case CatalogKindView:
		return "view"
	case CatalogKindJob:
		return "job"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// CatalogEntry is the value stored in the system catalog B+Tree.
type CatalogEntry struct {
	Name       string          `json:"name"`
	Kind       CatalogKind     `json:"kind"`
	RootPageID PageID          `json:"root_page_id"`
	Columns    []CatalogColumn `json:"columns,omitempty"`
	OnTable    string          `json:"on_table,omitempty"` // for Kind=index/trigram_index: owning table name
	OnColumn   string          `json:"on_column,omitempty"`
	Unique     bool            `json:"unique,omitempty"`
	RowCount   int64           `json:"row_count"`
	NextRowID  uint64          `json:"next_row_id,omitempty"` // for Kind=table: next auto-assigned rowid
	Version    int             `json:"version"`
	Job        *JobSchedule    `json:"job,omitempty"` // for Kind=job
}

// JobScheduleType selects how a Kind=job catalog entry is timed.
type JobScheduleType uint8

const (
	JobScheduleCron JobScheduleType = iota
	JobScheduleInterval
	JobScheduleOnce
)

func (t JobScheduleType) String() string {
	switch t {
	case JobScheduleCron:
		return "CRON"
	case JobScheduleInterval:
		return "INTERVAL"
	case JobScheduleOnce:
		return "ONCE"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// JobSchedule is the persisted state of one scheduled maintenance job,
// trimmed to the fields a catalog record (rather than a live scheduler)
// needs to carry across restarts.
type JobSchedule struct {
	Type        JobScheduleType `json:"type"`
	CronExpr    string          `json:"cron_expr,omitempty"`   // Type=JobScheduleCron
	IntervalMs  int64           `json:"interval_ms,omitempty"` // Type=JobScheduleInterval
	RunAtUnix   int64           `json:"run_at_unix,omitempty"` // Type=JobScheduleOnce
	Enabled     bool            `json:"enabled"`
	LastRunUnix int64           `json:"last_run_unix,omitempty"`
	NextRunUnix int64           `json:"next_run_unix,omitempty"`
}

// CatalogColumn describes a column in the system catalog.
type CatalogColumn struct {
	Name       string `json:"name"`
	Type       int    `json:"type"`
	Constraint int    `json:"constraint"`
	FKTable    string `json:"fk_table,omitempty"`
	FKColumn   string `json:"fk_col,omitempty"`
}

// catalogKey derives the B+Tree key for a catalog object name. Collisions
// (two names sharing a CRC-32C) are resolved at insert time by probing
// incrementing suffixes in the key's high 32 bits; lookups must therefore
// verify Name after a hit, same as any other hash-keyed access in this
// package (see the TEXT/BLOB hash-key collision handling in index.go).
func catalogKey(name string) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[4:8], crc32.Checksum([]byte(name), crcTable))
	return buf[:]
}

func catalogKeyWithSuffix(name string, suffix uint32) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], suffix)
	binary.BigEndian.PutUint32(buf[4:8], crc32.Checksum([]byte(name), crcTable))
	return buf[:]
}

// Catalog manages the system catalog B+Tree.
type Catalog struct {
	mu    sync.RWMutex
	pager *Pager
	tree  *BTree
}

// OpenCatalog opens or creates the system catalog.
func OpenCatalog(p *Pager, txID TxID) (*Catalog, error) {
	h := p.Header()
	cat := &Catalog{pager: p}

	if h.RootCatalog == InvalidPageID {
		bt, err := CreateBTree(p, txID)
		if err != nil {
			return nil, fmt.Errorf("create catalog tree: %w", err)
		}
		cat.tree = bt
		p.UpdateHeader(func(h *DbHeader) {
			h.RootCatalog = bt.Root()
		})
	} else {
		cat.tree = NewBTree(p, h.RootCatalog)
	}
	return cat, nil
}

// PutEntry upserts a catalog entry within the given transaction. On a
// CRC-32C collision with a different existing name, a disambiguating
// suffix is assigned and stored with the entry so GetEntry/DeleteEntry can
// locate it again.
func (c *Catalog) PutEntry(txID TxID, entry CatalogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := c.resolveKey(entry.Name, true)
	if err != nil {
		return err
	}
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.tree.Insert(txID, key, val)
}

// resolveKey finds the key actually used for name, probing suffixes on
// collision. If forInsert is true and no matching entry exists yet, it
// allocates the next free suffix for a brand new key.
func (c *Catalog) resolveKey(name string, forInsert bool) ([]byte, error) {
	for suffix := uint32(0); suffix < 1<<16; suffix++ {
		key := catalogKeyWithSuffix(name, suffix)
		val, found, err := c.tree.Get(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return key, nil
		}
		var entry CatalogEntry
		if err := json.Unmarshal(val, &entry); err != nil {
			continue
		}
		if entry.Name == name {
			return key, nil
		}
		if !forInsert {
			continue
		}
	}
	return nil, dberr.Internal("catalog: exhausted collision suffixes for %q", name)
}

// GetEntry retrieves a catalog entry by name. Returns nil if not found.
func (c *Catalog) GetEntry(name string) (*CatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for suffix := uint32(0); suffix < 1<<16; suffix++ {
		key := catalogKeyWithSuffix(name, suffix)
		val, found, err := c.tree.Get(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}
		var entry CatalogEntry
		if err := json.Unmarshal(val, &entry); err != nil {
			return nil, err
		}
		if entry.Name == name {
			return &entry, nil
		}
	}
	return nil, dberr.Internal("catalog: exhausted collision suffixes for %q", name)
}

// DeleteEntry removes a catalog entry within the given transaction.
func (c *Catalog) DeleteEntry(txID TxID, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key, err := c.resolveKey(name, false)
	if err != nil {
		return err
	}
	_, err = c.tree.Delete(txID, key)
	return err
}

// ListByKind returns the names of all catalog entries of the given kind,
// sorted for determinism.
func (c *Catalog) ListByKind(kind CatalogKind) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	err := c.tree.ScanRange(nil, nil, func(key, val []byte) bool {
		var entry CatalogEntry
		if err := json.Unmarshal(val, &entry); err != nil {
			return true
		}
		if entry.Kind == kind {
			names = append(names, entry.Name)
		}
		return true
	})
	sort.Strings(names)
	return names, err
}

// Root returns the catalog tree's root page ID.
func (c *Catalog) Root() PageID { return c.tree.Root() }

// ───────────────────────────────────────────────────────────────────────────
// Row key helpers — table storage keys rows by an 8-byte big-endian row ID
// ───────────────────────────────────────────────────────────────────────────

// RowKey creates a B+Tree key from a row ID.
func RowKey(rowID uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], rowID)
	return buf[:]
}

// ParseRowKey extracts the row ID from a B+Tree key.
func ParseRowKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}
