// Package realtime implements a keyed-record database on top of MQTT
// retained messages. The record at path P is the retained JSON payload of
// topic {root}/P; publishing an empty retained payload removes it.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autopeer-io/campustrack/internal/pkg/apperr"
	"github.com/autopeer-io/campustrack/pkg/log"
	"github.com/autopeer-io/campustrack/pkg/mqtt"
	"github.com/autopeer-io/campustrack/pkg/mqtt/topic"
)

const qosAtLeastOnce = 1

// Disposer releases a watch. Calling it more than once is a no-op.
type Disposer func()

// Child is one direct child of a watched collection.
type Child struct {
	Key  string
	Data json.RawMessage
}

// ValueFunc receives the whole record; nil means the record does not exist.
type ValueFunc func(data json.RawMessage)

// ChildrenFunc receives every child of a collection in arrival order.
type ChildrenFunc func(children []Child)

// ErrorFunc receives stream failures. It may be nil.
type ErrorFunc func(err error)

// Database is the subscribe(path) -> disposer capability the rest of the
// client is written against.
type Database interface {
	WatchValue(ctx context.Context, path string, fn ValueFunc, onErr ErrorFunc) (Disposer, error)
	WatchChildren(ctx context.Context, path string, fn ChildrenFunc, onErr ErrorFunc) (Disposer, error)

	// Get reads a record once. A missing record is a NotFound error.
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Set(ctx context.Context, path string, v any) error
	// Update merges fields into the current record.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Push stores v under a new time-ordered key below path and returns the key.
	Push(ctx context.Context, path string, v any) (string, error)
	Remove(ctx context.Context, path string) error
}

// Options tunes a Database.
type Options struct {
	// Root is the topic namespace, e.g. "campustrack/db".
	Root string
	// Settle bounds how long a new subscription waits for retained state.
	Settle time.Duration
}

type mqttDatabase struct {
	client mqtt.Client
	topics *topic.TopicBuilder
	settle time.Duration
	// replayed is true when the client delivers retained state inside
	// Subscribe, so a feed is complete as soon as Subscribe returns.
	replayed bool
	log      log.Logger

	mu      sync.Mutex
	records map[string]*recordFeed   // keyed by path
	lists   map[string]*childrenFeed // keyed by path

	// subMu orders SUBSCRIBE and UNSUBSCRIBE of the same filter.
	subMu sync.Mutex
}

var _ Database = (*mqttDatabase)(nil)

// New returns a Database backed by client. The client must be started.
func New(client mqtt.Client, opts Options) Database {
	if opts.Settle <= 0 {
		opts.Settle = time.Second
	}
	d := &mqttDatabase{
		client:  client,
		topics:  topic.NewTopicBuilder(opts.Root),
		settle:  opts.Settle,
		log:     log.WithName("realtime"),
		records: make(map[string]*recordFeed),
		lists:   make(map[string]*childrenFeed),
	}
	if r, ok := client.(mqtt.RetainedReplayer); ok {
		d.replayed = r.ReplaysRetained()
	}
	return d
}

func checkPath(op, path string) error {
	if path == "" || strings.ContainsAny(path, "+#") || strings.HasPrefix(path, "/") {
		return apperr.New(apperr.KindValidation, op, fmt.Sprintf("invalid path %q", path))
	}
	return nil
}

func (d *mqttDatabase) WatchValue(ctx context.Context, path string, fn ValueFunc, onErr ErrorFunc) (Disposer, error) {
	if err := checkPath("watch", path); err != nil {
		return nil, err
	}

	d.mu.Lock()
	feed, ok := d.records[path]
	if !ok {
		feed = newRecordFeed()
		d.records[path] = feed
	}
	id := feed.add(fn, onErr)
	d.mu.Unlock()

	if !ok {
		err := d.subscribe(ctx, d.topics.Record(path), func(_ context.Context, _ string, payload []byte) {
			feed.apply(payload)
		})
		if err != nil {
			d.dropRecord(path, feed)
			err = apperr.Wrap(apperr.KindNetwork, "watch "+path, err)
			feed.fail(err)
			return nil, err
		}
		feed.prime(d.settle, d.replayed)
	}
	feed.join(id)

	return d.recordDisposer(path, feed, id), nil
}

func (d *mqttDatabase) WatchChildren(ctx context.Context, path string, fn ChildrenFunc, onErr ErrorFunc) (Disposer, error) {
	if err := checkPath("watch", path); err != nil {
		return nil, err
	}

	d.mu.Lock()
	feed, ok := d.lists[path]
	if !ok {
		feed = newChildrenFeed()
		d.lists[path] = feed
	}
	id := feed.add(fn, onErr)
	d.mu.Unlock()

	if !ok {
		err := d.subscribe(ctx, d.topics.Children(path), func(_ context.Context, t string, payload []byte) {
			feed.apply(topic.Key(t), payload)
		})
		if err != nil {
			d.dropChildren(path, feed)
			err = apperr.Wrap(apperr.KindNetwork, "watch "+path, err)
			feed.fail(err)
			return nil, err
		}
		feed.prime(d.settle, d.replayed)
	}
	feed.join(id)

	return d.childrenDisposer(path, feed, id), nil
}

func (d *mqttDatabase) subscribe(ctx context.Context, filter string, handler mqtt.MessageHandler) error {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	return d.client.Subscribe(ctx, filter, qosAtLeastOnce, handler)
}

func (d *mqttDatabase) recordDisposer(path string, feed *recordFeed, id uint64) Disposer {
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			empty := feed.remove(id) == 0
			if empty && d.records[path] == feed {
				delete(d.records, path)
			}
			d.mu.Unlock()
			if empty {
				d.unsubscribe(d.topics.Record(path), func() bool {
					_, ok := d.records[path]
					return ok
				})
			}
		})
	}
}

func (d *mqttDatabase) childrenDisposer(path string, feed *childrenFeed, id uint64) Disposer {
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			empty := feed.remove(id) == 0
			if empty && d.lists[path] == feed {
				delete(d.lists, path)
			}
			d.mu.Unlock()
			if empty {
				d.unsubscribe(d.topics.Children(path), func() bool {
					_, ok := d.lists[path]
					return ok
				})
			}
		})
	}
}

func (d *mqttDatabase) dropRecord(path string, feed *recordFeed) {
	d.mu.Lock()
	if d.records[path] == feed {
		delete(d.records, path)
	}
	d.mu.Unlock()
}

func (d *mqttDatabase) dropChildren(path string, feed *childrenFeed) {
	d.mu.Lock()
	if d.lists[path] == feed {
		delete(d.lists, path)
	}
	d.mu.Unlock()
}

// unsubscribe releases filter unless a newer feed has taken it over in the
// meantime. reused is called with d.mu held.
func (d *mqttDatabase) unsubscribe(filter string, reused func() bool) {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	d.mu.Lock()
	busy := reused()
	d.mu.Unlock()
	if busy {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.client.Unsubscribe(ctx, filter); err != nil {
		d.log.Warn("Unsubscribe failed", "topic", filter, "error", err.Error())
	}
}

// observed returns the value an active watch of path (or of its parent
// collection) has seen. known is false when no watch has a complete view of
// path yet.
func (d *mqttDatabase) observed(path string) (value json.RawMessage, known bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if feed, ok := d.records[path]; ok {
		if v, ready := feed.current(); ready {
			return v, true
		}
	}
	if i := strings.LastIndexByte(path, '/'); i > 0 {
		if feed, ok := d.lists[path[:i]]; ok {
			if v, ready := feed.child(path[i+1:]); ready {
				return v, true
			}
		}
	}
	return nil, false
}

// Get answers from a watch that already holds path. Otherwise it joins the
// record feed of path and waits for the feed to learn the record.
func (d *mqttDatabase) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if err := checkPath("get", path); err != nil {
		return nil, err
	}
	if v, known := d.observed(path); known {
		if len(v) == 0 {
			return nil, apperr.New(apperr.KindNotFound, "get "+path, "no record")
		}
		return v, nil
	}

	got := make(chan json.RawMessage, 1)
	failed := make(chan error, 1)
	dispose, err := d.WatchValue(ctx, path, func(v json.RawMessage) {
		select {
		case got <- v:
		default:
		}
	}, func(err error) {
		select {
		case failed <- err:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	defer dispose()

	select {
	case err := <-failed:
		return nil, err
	default:
	}
	select {
	case v := <-got:
		if len(v) == 0 {
			return nil, apperr.New(apperr.KindNotFound, "get "+path, "no record")
		}
		return v, nil
	case err := <-failed:
		return nil, err
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.KindNetwork, "get "+path, ctx.Err())
	}
}

func (d *mqttDatabase) Set(ctx context.Context, path string, v any) error {
	if err := checkPath("set", path); err != nil {
		return err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "set "+path, err)
	}
	return d.publish(ctx, "set", path, payload)
}

func (d *mqttDatabase) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := checkPath("update", path); err != nil {
		return err
	}

	base, err := d.Get(ctx, path)
	if err != nil && !apperr.IsNotFound(err) {
		return err
	}

	merged := map[string]any{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &merged); err != nil {
			return apperr.Wrap(apperr.KindServer, "update "+path, fmt.Errorf("existing record is not an object: %w", err))
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return d.Set(ctx, path, merged)
}

func (d *mqttDatabase) Push(ctx context.Context, path string, v any) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", apperr.Wrap(apperr.KindServer, "push "+path, err)
	}
	key := id.String()
	if err := d.Set(ctx, path+"/"+key, v); err != nil {
		return "", err
	}
	return key, nil
}

func (d *mqttDatabase) Remove(ctx context.Context, path string) error {
	if err := checkPath("remove", path); err != nil {
		return err
	}
	return d.publish(ctx, "remove", path, nil)
}

func (d *mqttDatabase) publish(ctx context.Context, op, path string, payload []byte) error {
	if err := d.client.Publish(ctx, d.topics.Record(path), qosAtLeastOnce, true, payload); err != nil {
		return apperr.Wrap(apperr.KindNetwork, op+" "+path, err)
	}
	return nil
}
