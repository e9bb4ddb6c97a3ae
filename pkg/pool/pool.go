// Package pool recycles the records that flow from sources to destinations.
// A source takes a record with NewRecordFromPool, fills it and sends it on a
// core.RecordStream; the last consumer calls Release.
//
//	record := pool.NewRecordFromPool("outlook")
//	defer record.Release()
//
//	record.SetData("subject", "Quarterly report")
//	record.SetMetadata("mailbox", "user@example.com")
package pool

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Pool is a typed sync.Pool. Objects handed back with Put are passed to the
// reset hook first.
type Pool[T any] struct {
	pool      sync.Pool
	reset     func(T)
	allocated atomic.Int64
	inUse     atomic.Int64
	hits      atomic.Int64
}

// New creates a pool allocating with newFn. reset may be nil.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		p.allocated.Add(1)
		return newFn()
	}
	return p
}

// Get takes an object out of the pool.
func (p *Pool[T]) Get() T {
	p.inUse.Add(1)
	p.hits.Add(1)
	return p.pool.Get().(T)
}

// Put resets obj and hands it back.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.inUse.Add(-1)
	p.pool.Put(obj)
}

// Stats reports objects allocated, currently checked out, and Get calls.
func (p *Pool[T]) Stats() (allocated, inUse, hits int64) {
	return p.allocated.Load(), p.inUse.Load(), p.hits.Load()
}

// RecordMetadata says where a record came from.
type RecordMetadata struct {
	Source    string                 `json:"source,omitempty"`
	Table     string                 `json:"table,omitempty"` // mailbox, sObject or frame name
	Timestamp time.Time              `json:"timestamp"`
	Custom    map[string]interface{} `json:"custom,omitempty"`
}

// Record is one row: column name to value.
type Record struct {
	ID       string                 `json:"id"`
	Data     map[string]interface{} `json:"data"`
	Metadata RecordMetadata         `json:"metadata"`
}

func clearMap(m map[string]interface{}) {
	for k := range m {
		delete(m, k)
	}
}

var (
	records = New(
		func() *Record { return &Record{Data: make(map[string]interface{}, 16)} },
		func(r *Record) {
			r.ID = ""
			clearMap(r.Data)
			r.Metadata = RecordMetadata{}
		},
	)
	maps = New(
		func() map[string]interface{} { return make(map[string]interface{}, 16) },
		clearMap,
	)
	lastID atomic.Uint64
)

// GetRecord returns an empty record stamped with the current time.
func GetRecord() *Record {
	r := records.Get()
	if r.Data == nil {
		r.Data = GetMap()
	}
	r.Metadata.Timestamp = time.Now()
	return r
}

// GetMap returns an empty map.
func GetMap() map[string]interface{} {
	return maps.Get()
}

// PutMap clears m and hands it back. Nil is ignored.
func PutMap(m map[string]interface{}) {
	if m != nil {
		maps.Put(m)
	}
}

// GenerateID returns "prefix-N", unique within the process.
func GenerateID(prefix string) string {
	return prefix + "-" + strconv.FormatUint(lastID.Add(1), 10)
}

// NewRecord returns a pooled record owning data.
func NewRecord(source string, data map[string]interface{}) *Record {
	r := GetRecord()
	r.ID = GenerateID("rec")
	r.Data = data
	r.Metadata.Source = source
	return r
}

// NewRecordFromPool returns a pooled record with an empty data map.
func NewRecordFromPool(source string) *Record {
	r := GetRecord()
	r.ID = GenerateID("rec")
	r.Metadata.Source = source
	return r
}

func (r *Record) SetData(key string, value interface{}) {
	if r.Data == nil {
		r.Data = GetMap()
	}
	r.Data[key] = value
}

func (r *Record) GetData(key string) (interface{}, bool) {
	v, ok := r.Data[key]
	return v, ok
}

func (r *Record) SetMetadata(key string, value interface{}) {
	if r.Metadata.Custom == nil {
		r.Metadata.Custom = GetMap()
	}
	r.Metadata.Custom[key] = value
}

func (r *Record) GetMetadata(key string) (interface{}, bool) {
	v, ok := r.Metadata.Custom[key]
	return v, ok
}

// Release hands the record and its metadata map back. The record must not
// be used afterwards. Nil is ignored.
func (r *Record) Release() {
	if r == nil {
		return
	}
	if r.Metadata.Custom != nil {
		PutMap(r.Metadata.Custom)
		r.Metadata.Custom = nil
	}
	records.Put(r)
}
