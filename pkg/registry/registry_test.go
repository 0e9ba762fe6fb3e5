package registry

import (
	"testing"

	"github.com/cuemby/sentryd/pkg/types"
	"github.com/stretchr/testify/assert"
)

func testRecord(inum uint64) types.WorkloadRecord {
	return types.WorkloadRecord{
		Identity: types.WorkloadIdentity{
			Name:           "web",
			Namespace:      "app",
			PrimaryAddress: "10.0.0.5",
		},
		ContainerID: "abc123",
		RuntimePID:  4242,
		PidnsInum:   inum,
	}
}

func TestInsertAndGet(t *testing.T) {
	r := New()
	r.Insert(testRecord(42))

	rec, ok := r.Get(42)

	assert.True(t, ok)
	assert.Equal(t, "web", rec.Identity.Name)
}

func TestGet_Missing(t *testing.T) {
	r := New()

	_, ok := r.Get(999)

	assert.False(t, ok)
}

func TestInsert_Idempotent(t *testing.T) {
	r := New()
	r.Insert(testRecord(42))
	r.Insert(testRecord(42))

	assert.Len(t, r.Snapshot(), 1)
}

func TestRemove(t *testing.T) {
	r := New()
	r.Insert(testRecord(42))
	r.Remove(42)

	_, ok := r.Get(42)
	assert.False(t, ok)
}

func TestSnapshot(t *testing.T) {
	r := New()
	r.Insert(testRecord(1))
	r.Insert(testRecord(2))

	snap := r.Snapshot()

	assert.Len(t, snap, 2)
}
