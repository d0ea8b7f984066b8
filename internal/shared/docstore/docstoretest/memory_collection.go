// Package docstoretest provides an in-memory docstore.CollectionInterface for tests.
//
// It understands the subset of the MongoDB query language the stores use:
// equality and comparison filters, $set/$inc/$unset updates, sort/limit/skip
// and unique indexes.
package docstoretest

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"catalog-service/internal/shared/docstore"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MemoryCollection stores documents in insertion order behind a mutex.
type MemoryCollection struct {
	mu      sync.Mutex
	docs    []bson.M
	uniques [][]string
	failOn  map[string]error
}

var _ docstore.CollectionInterface = (*MemoryCollection)(nil)

// NewMemoryCollection creates an empty collection.
func NewMemoryCollection() *MemoryCollection {
	return &MemoryCollection{failOn: make(map[string]error)}
}

// FailOn makes operation op (e.g. "InsertOne", "Find") return err. An empty op
// fails every operation. A nil err clears the failure.
func (m *MemoryCollection) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, op)
		return
	}
	m.failOn[op] = err
}

// Len returns the number of stored documents.
func (m *MemoryCollection) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *MemoryCollection) injected(op string) error {
	if err, ok := m.failOn[op]; ok {
		return err
	}
	return m.failOn[""]
}

func (m *MemoryCollection) EnsureIndexes(_ context.Context, models []mongo.IndexModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("EnsureIndexes"); err != nil {
		return err
	}
	for _, model := range models {
		if model.Options == nil || model.Options.Unique == nil || !*model.Options.Unique {
			continue
		}
		keys, err := toOrdered(model.Keys)
		if err != nil {
			return err
		}
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, k.Key)
		}
		m.uniques = append(m.uniques, fields)
	}
	return nil
}

func (m *MemoryCollection) CountDocuments(ctx context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "CountDocuments"); err != nil {
		return 0, err
	}
	idx, err := m.matching(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(idx)), nil
}

func (m *MemoryCollection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "InsertOne"); err != nil {
		return nil, err
	}
	d, err := toDoc(doc)
	if err != nil {
		return nil, err
	}
	if _, ok := d["_id"]; !ok {
		d["_id"] = primitive.NewObjectID()
	}
	if err := m.checkUnique(d, -1); err != nil {
		return nil, err
	}
	m.docs = append(m.docs, d)
	return d["_id"], nil
}

func (m *MemoryCollection) FindOne(ctx context.Context, filter interface{}, _ ...*options.FindOneOptions) docstore.SingleResultInterface {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "FindOne"); err != nil {
		return &singleResult{err: err}
	}
	idx, err := m.matching(filter)
	if err != nil {
		return &singleResult{err: err}
	}
	if len(idx) == 0 {
		return &singleResult{err: mongo.ErrNoDocuments}
	}
	return &singleResult{doc: m.docs[idx[0]]}
}

func (m *MemoryCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}) (docstore.UpdateResultInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "UpdateOne"); err != nil {
		return nil, err
	}
	idx, err := m.matching(filter)
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return count(0), nil
	}
	if _, err := m.updateAt(idx[0], update); err != nil {
		return nil, err
	}
	return count(1), nil
}

func (m *MemoryCollection) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) docstore.SingleResultInterface {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "FindOneAndUpdate"); err != nil {
		return &singleResult{err: err}
	}
	idx, err := m.matching(filter)
	if err != nil {
		return &singleResult{err: err}
	}
	if len(idx) == 0 {
		return &singleResult{err: mongo.ErrNoDocuments}
	}
	before, err := toDoc(m.docs[idx[0]])
	if err != nil {
		return &singleResult{err: err}
	}
	after, err := m.updateAt(idx[0], update)
	if err != nil {
		return &singleResult{err: err}
	}
	for _, o := range opts {
		if o != nil && o.ReturnDocument != nil && *o.ReturnDocument == options.After {
			return &singleResult{doc: after}
		}
	}
	return &singleResult{doc: before}
}

func (m *MemoryCollection) DeleteOne(ctx context.Context, filter interface{}) (docstore.DeleteResultInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "DeleteOne"); err != nil {
		return nil, err
	}
	idx, err := m.matching(filter)
	if err != nil {
		return nil, err
	}
	if len(idx) == 0 {
		return count(0), nil
	}
	m.docs = append(m.docs[:idx[0]], m.docs[idx[0]+1:]...)
	return count(1), nil
}

func (m *MemoryCollection) DeleteMany(ctx context.Context, filter interface{}) (docstore.DeleteResultInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "DeleteMany"); err != nil {
		return nil, err
	}
	idx, err := m.matching(filter)
	if err != nil {
		return nil, err
	}
	drop := make(map[int]bool, len(idx))
	for _, i := range idx {
		drop[i] = true
	}
	kept := m.docs[:0]
	for i, d := range m.docs {
		if !drop[i] {
			kept = append(kept, d)
		}
	}
	m.docs = kept
	return count(len(idx)), nil
}

func (m *MemoryCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (docstore.CursorInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "Find"); err != nil {
		return nil, err
	}
	idx, err := m.matching(filter)
	if err != nil {
		return nil, err
	}
	out := make([]bson.M, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.docs[i])
	}

	var skip, limit int64
	for _, o := range opts {
		if o == nil {
			continue
		}
		if o.Sort != nil {
			order, err := toOrdered(o.Sort)
			if err != nil {
				return nil, err
			}
			sortDocs(out, order)
		}
		if o.Skip != nil {
			skip = *o.Skip
		}
		if o.Limit != nil {
			limit = *o.Limit
		}
	}
	if skip > 0 {
		if skip >= int64(len(out)) {
			out = out[:0]
		} else {
			out = out[skip:]
		}
	}
	if limit > 0 && limit < int64(len(out)) {
		out = out[:limit]
	}
	return &cursor{docs: out}, nil
}

func (m *MemoryCollection) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.injected(op)
}

func (m *MemoryCollection) matching(filter interface{}) ([]int, error) {
	f, err := toDoc(filter)
	if err != nil {
		return nil, err
	}
	var idx []int
	for i, d := range m.docs {
		ok, err := matches(d, f)
		if err != nil {
			return nil, err
		}
		if ok {
			idx = append(idx, i)
		}
	}
	return idx, nil
}

// updateAt applies update to a copy of document i and commits it when unique
// indexes still hold.
func (m *MemoryCollection) updateAt(i int, update interface{}) (bson.M, error) {
	u, err := toDoc(update)
	if err != nil {
		return nil, err
	}
	next, err := toDoc(m.docs[i])
	if err != nil {
		return nil, err
	}
	if err := applyUpdate(next, u); err != nil {
		return nil, err
	}
	if err := m.checkUnique(next, i); err != nil {
		return nil, err
	}
	m.docs[i] = next
	return next, nil
}

func (m *MemoryCollection) checkUnique(candidate bson.M, skip int) error {
	sets := append([][]string{{"_id"}}, m.uniques...)
	for _, fields := range sets {
		for i, d := range m.docs {
			if i == skip {
				continue
			}
			same := true
			for _, f := range fields {
				a, okA := lookup(candidate, f)
				b, okB := lookup(d, f)
				if !okA || !okB || !equal(a, b) {
					same = false
					break
				}
			}
			if same {
				return duplicateKeyError(fields)
			}
		}
	}
	return nil
}

func duplicateKeyError(fields []string) error {
	return mongo.WriteException{
		WriteErrors: []mongo.WriteError{{
			Index:   0,
			Code:    11000,
			Message: fmt.Sprintf("E11000 duplicate key error index: %s", strings.Join(fields, "_1_")+"_1"),
		}},
	}
}

func matches(doc bson.M, filter bson.M) (bool, error) {
	for key, want := range filter {
		if strings.HasPrefix(key, "$") {
			return false, fmt.Errorf("docstoretest: unsupported top-level operator %s", key)
		}
		got, present := lookup(doc, key)
		if ops, ok := operatorDoc(want); ok {
			for op, arg := range ops {
				ok, err := evalOperator(op, got, present, arg)
				if err != nil || !ok {
					return false, err
				}
			}
			continue
		}
		if !present {
			if want != nil {
				return false, nil
			}
			continue
		}
		if !equal(got, want) {
			return false, nil
		}
	}
	return true, nil
}

func evalOperator(op string, got interface{}, present bool, arg interface{}) (bool, error) {
	switch op {
	case "$eq":
		return present && equal(got, arg), nil
	case "$ne":
		return !present || !equal(got, arg), nil
	case "$exists":
		want, _ := arg.(bool)
		return present == want, nil
	case "$in":
		list, ok := arg.(bson.A)
		if !ok {
			return false, fmt.Errorf("docstoretest: $in needs an array")
		}
		for _, v := range list {
			if present && equal(got, v) {
				return true, nil
			}
		}
		return false, nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		c, ok := compare(got, arg)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	}
	return false, fmt.Errorf("docstoretest: unsupported operator %s", op)
}

func applyUpdate(doc bson.M, update bson.M) error {
	for op, arg := range update {
		fields, ok := asMap(arg)
		if !ok {
			return fmt.Errorf("docstoretest: %s needs a document", op)
		}
		switch op {
		case "$set":
			for path, v := range fields {
				if path == "_id" {
					return fmt.Errorf("docstoretest: _id is immutable")
				}
				setPath(doc, path, v)
			}
		case "$unset":
			for path := range fields {
				unsetPath(doc, path)
			}
		case "$inc":
			for path, delta := range fields {
				cur, present := lookup(doc, path)
				if !present || cur == nil {
					cur = int64(0)
				}
				sum, err := add(cur, delta)
				if err != nil {
					return fmt.Errorf("docstoretest: $inc %s: %w", path, err)
				}
				setPath(doc, path, sum)
			}
		default:
			return fmt.Errorf("docstoretest: unsupported update operator %s", op)
		}
	}
	return nil
}

func sortDocs(docs []bson.M, order bson.D) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range order {
			a, _ := lookup(docs[i], key.Key)
			b, _ := lookup(docs[j], key.Key)
			c, ok := compare(a, b)
			if !ok || c == 0 {
				continue
			}
			if dir, _ := toFloat(key.Value); dir < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// --- value helpers ---

func toDoc(v interface{}) (bson.M, error) {
	if v == nil {
		return bson.M{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toOrdered(v interface{}) (bson.D, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out bson.D
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]interface{}:
		return t, true
	case bson.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = e.Value
		}
		return m, true
	}
	return nil, false
}

func operatorDoc(v interface{}) (map[string]interface{}, bool) {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func lookup(doc map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = doc
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(cur[p])
		if !ok {
			next = bson.M{}
		}
		cur[p] = bson.M(next)
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func unsetPath(doc map[string]interface{}, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(cur[p])
		if !ok {
			return
		}
		cur[p] = bson.M(next)
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func add(a, b interface{}) (interface{}, error) {
	if x, ok := toInt(a); ok {
		if y, ok := toInt(b); ok {
			return x + y, nil
		}
	}
	x, okA := toFloat(a)
	y, okB := toFloat(b)
	if !okA || !okB {
		return nil, fmt.Errorf("non-numeric operands %T and %T", a, b)
	}
	return x + y, nil
}

func compare(a, b interface{}) (int, bool) {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		return cmp3(x < y, x > y), true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case primitive.DateTime:
		y, ok := b.(primitive.DateTime)
		if !ok {
			return 0, false
		}
		return cmp3(x < y, x > y), true
	case primitive.ObjectID:
		y, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(x[:], y[:]), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		return cmp3(!x && y, x && !y), true
	}
	return 0, false
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func equal(a, b interface{}) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// --- results ---

type count int64

func (c count) Matched() int64 { return int64(c) }
func (c count) Deleted() int64 { return int64(c) }

type singleResult struct {
	doc bson.M
	err error
}

func (r *singleResult) Decode(v interface{}) error {
	if r.err != nil {
		return r.err
	}
	return decode(r.doc, v)
}

type cursor struct {
	docs []bson.M
	pos  int
	err  error
}

func (c *cursor) Next(context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Decode(v interface{}) error {
	if c.pos == 0 || c.pos > len(c.docs) {
		return fmt.Errorf("docstoretest: Decode called without Next")
	}
	return decode(c.docs[c.pos-1], v)
}

func (c *cursor) Close(context.Context) error { return nil }
func (c *cursor) Err() error                  { return c.err }

func decode(doc bson.M, v interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}
