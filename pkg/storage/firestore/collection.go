package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
)

type ToFirestoreFunc[T any] func(*T) map[string]interface{}
type FromFirestoreFunc[T any] func(map[string]interface{}) *T

type Collection[T any] struct {
	Ref           *firestore.CollectionRef
	ToFirestore   ToFirestoreFunc[T]
	FromFirestore FromFirestoreFunc[T]
}

func (c *Collection[T]) Doc(id string) *DocumentRef[T] {
	return &DocumentRef[T]{
		Ref:           c.Ref.Doc(id),
		ToFirestore:   c.ToFirestore,
		FromFirestore: c.FromFirestore,
	}
}

func (c *Collection[T]) NewDoc() *DocumentRef[T] {
	return &DocumentRef[T]{
		Ref:           c.Ref.NewDoc(),
		ToFirestore:   c.ToFirestore,
		FromFirestore: c.FromFirestore,
	}
}

// Decode runs the collection's converter over a raw snapshot map. Used by
// callers that run their own queries against Ref.
func (c *Collection[T]) Decode(data map[string]interface{}) *T {
	return c.FromFirestore(data)
}

type DocumentRef[T any] struct {
	Ref           *firestore.DocumentRef
	ToFirestore   ToFirestoreFunc[T]
	FromFirestore FromFirestoreFunc[T]
}

func (d *DocumentRef[T]) ID() string {
	return d.Ref.ID
}

func (d *DocumentRef[T]) Get(ctx context.Context) (*T, error) {
	snap, err := d.Ref.Get(ctx)
	if err != nil {
		return nil, err
	}
	return d.FromFirestore(snap.Data()), nil
}

func (d *DocumentRef[T]) Set(ctx context.Context, data *T) error {
	m := d.ToFirestore(data)
	_, err := d.Ref.Set(ctx, m, firestore.MergeAll)
	return err
}

// Create writes the document only if it does not exist yet. The store
// surfaces a grpc AlreadyExists error on collision, which callers use for
// idempotency keyed on the document id.
func (d *DocumentRef[T]) Create(ctx context.Context, data *T) error {
	m := d.ToFirestore(data)
	_, err := d.Ref.Create(ctx, m)
	return err
}

func (d *DocumentRef[T]) Update(ctx context.Context, updates map[string]interface{}) error {
	// Simple map update - keys must match Firestore snake_case fields
	// We do not run converter here because updates are often partials/dots
	_, err := d.Ref.Set(ctx, updates, firestore.MergeAll)
	return err
}

func (d *DocumentRef[T]) Delete(ctx context.Context) error {
	_, err := d.Ref.Delete(ctx)
	return err
}
