// Package objectstore implements core.ObjectStore on top of NATS JetStream
// object storage.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Bucket is a single JetStream object store bucket. The pipeline uses one
// bucket for incoming text chunks and another for rendered audio.
type Bucket struct {
	name  string
	store nats.ObjectStore
}

// NewBucket creates the named bucket, binding to it instead when it already
// exists.
func NewBucket(jetstreamContext nats.JetStreamContext, name string) (*Bucket, error) {
	store, createErr := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      name,
		Description: fmt.Sprintf("voice-gateway %s bucket", name),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if createErr != nil {
		if !errors.Is(createErr, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("create bucket '%s': %w", name, createErr)
		}

		var bindErr error

		store, bindErr = jetstreamContext.ObjectStore(name)
		if bindErr != nil {
			return nil, fmt.Errorf("bind to bucket '%s': %w", name, bindErr)
		}
	}

	return &Bucket{
		name:  name,
		store: store,
	}, nil
}

// Download retrieves the object stored under key.
func (b *Bucket) Download(_ context.Context, key string) ([]byte, error) {
	obj, getErr := b.store.Get(key)
	if getErr != nil {
		return nil, fmt.Errorf("get object '%s' from bucket '%s': %w", key, b.name, getErr)
	}

	data, readErr := io.ReadAll(obj)

	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload stores data under key, replacing any existing object.
func (b *Bucket) Upload(_ context.Context, key string, data []byte) error {
	_, putErr := b.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if putErr != nil {
		return fmt.Errorf("put object '%s' to bucket '%s': %w", key, b.name, putErr)
	}

	return nil
}
