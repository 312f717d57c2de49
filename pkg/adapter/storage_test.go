package adapter_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/concierge/pkg/adapter"
	"github.com/m-mizutani/gt"
)

func TestStorage(t *testing.T) {
	bucket := os.Getenv("TEST_STORAGE_BUCKET")
	if bucket == "" {
		t.Skip("TEST_STORAGE_BUCKET is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewStorage(ctx, bucket, adapter.WithStoragePrefix("concierge-test/"))
	gt.NoError(t, err)

	key := uuid.NewString() + ".json"
	gt.NoError(t, client.Put(ctx, key, []byte(`{"hello":"world"}`)))

	data, err := client.Get(ctx, key)
	gt.NoError(t, err)
	gt.V(t, string(data)).Equal(`{"hello":"world"}`)

	_, err = client.Get(ctx, uuid.NewString()+".json")
	gt.True(t, errors.Is(err, adapter.ErrObjectNotFound))
}
