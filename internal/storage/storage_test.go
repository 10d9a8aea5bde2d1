package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/whatsapp-warmup/internal/config"
	"github.com/ignite/whatsapp-warmup/internal/warmup"
)

var testNow = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func newRegistry(t *testing.T) *warmup.Registry {
	t.Helper()
	r := warmup.NewRegistry(nil, nil)
	r.SetClock(func() time.Time { return testNow })
	return r
}

func sampleSnapshot(name string, stage int) warmup.InstanceSnapshot {
	return warmup.InstanceSnapshot{
		Config: warmup.Config{
			InstanceName:     name,
			CurrentStage:     stage,
			StartDate:        testNow.AddDate(0, 0, -5),
			Contacts:         []string{"111", "222"},
			InternalContacts: []string{"111", "222"},
			DailyLimits:      map[int]int{1: 5, 2: 15},
		},
		Metrics: []warmup.DailyMetrics{
			{Date: "2024-03-03", Stage: stage, MessagesSent: 4, MessagesReceived: 2, ResponseRate: 0.5},
		},
	}
}

// ===== REDIS STORE =====

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSnapshot("sales", 2)))
	require.NoError(t, store.Save(ctx, sampleSnapshot("billing", 1)))

	assert.True(t, mr.Exists("warmup:snapshot:sales"))
	members, err := mr.Members("warmup:instances")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sales", "billing"}, members)

	got, err := store.Load(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Config.CurrentStage)
	assert.Equal(t, 15, got.Config.DailyLimits[2])
	require.Len(t, got.Metrics, 1)
	assert.Equal(t, 4, got.Metrics[0].MessagesSent)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "billing", all[0].Config.InstanceName)
	assert.Equal(t, "sales", all[1].Config.InstanceName)
}

func TestRedisStoreMissing(t *testing.T) {
	mr, client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	_, err := store.Load(ctx, "ghost")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, store.Save(ctx, sampleSnapshot("sales", 1)))
	mr.Del("warmup:snapshot:sales")
	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

// ===== DYNAMODB STORE =====

type fakeDynamo struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	scans    int
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue), pageSize: 1}
}

func attrS(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[attrS(in.Item["PK"])+"|"+attrS(in.Item["SK"])] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: f.items[attrS(in.Key["PK"])+"|"+attrS(in.Key["SK"])]}, nil
}

// Scan returns one item per page in key order to exercise pagination.
func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++

	var keys []string
	for k := range f.items {
		if strings.HasSuffix(k, "|SNAPSHOT") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		after := attrS(in.ExclusiveStartKey["PK"]) + "|" + attrS(in.ExclusiveStartKey["SK"])
		for i, k := range keys {
			if k == after {
				start = i + 1
			}
		}
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}
	out := &dynamodb.ScanOutput{}
	for _, k := range keys[start:end] {
		out.Items = append(out.Items, f.items[k])
	}
	if end < len(keys) {
		last := f.items[keys[end-1]]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"PK": last["PK"], "SK": last["SK"]}
	}
	return out, nil
}

func TestDynamoStoreRoundTrip(t *testing.T) {
	fake := newFakeDynamo()
	store := NewDynamoStore(fake, "warmup")
	store.now = func() time.Time { return testNow }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSnapshot("sales", 3)))
	require.NoError(t, store.Save(ctx, sampleSnapshot("billing", 1)))
	require.NoError(t, store.Save(ctx, sampleSnapshot("sales", 4)))

	item := fake.items["INSTANCE#sales|SNAPSHOT"]
	require.NotNil(t, item)
	assert.Equal(t, "2024-03-04T10:00:00Z", attrS(item["Timestamp"]))

	got, err := store.Load(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Config.CurrentStage)

	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "billing", all[0].Config.InstanceName)
	assert.Equal(t, "sales", all[1].Config.InstanceName)
	assert.Equal(t, 2, fake.scans)

	_, err = store.Load(ctx, "ghost")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

// ===== S3 ARCHIVER =====

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestArchiver(t *testing.T) {
	fake := &fakeS3{}
	a := NewArchiver(fake, "exports-bucket")
	a.now = func() time.Time { return testNow }

	key, err := a.Archive(context.Background(), "sales", "csv", []byte("Date\n"))
	require.NoError(t, err)
	assert.Equal(t, "exports/sales/20240304T100000Z.csv", key)

	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "exports-bucket", aws.ToString(fake.inputs[0].Bucket))
	assert.Equal(t, "text/csv", aws.ToString(fake.inputs[0].ContentType))
	assert.Equal(t, "Date\n", fake.bodies[0])

	fake.err = errors.New("access denied")
	_, err = a.Archive(context.Background(), "sales", "json", []byte("{}"))
	assert.Error(t, err)
}

// ===== OPEN =====

func TestOpen(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	store, err := Open(ctx, config.StorageConfig{Type: "none"}, client)
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = Open(ctx, config.StorageConfig{Type: "redis"}, client)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, store)

	_, err = Open(ctx, config.StorageConfig{Type: "redis"}, nil)
	assert.Error(t, err)

	_, err = Open(ctx, config.StorageConfig{Type: "dynamodb"}, nil)
	assert.Error(t, err)

	_, err = Open(ctx, config.StorageConfig{Type: "postgres"}, nil)
	assert.Error(t, err)
}

// ===== SYNCER =====

type countingStore struct {
	Store
	saves int
}

func (c *countingStore) Save(ctx context.Context, snap warmup.InstanceSnapshot) error {
	c.saves++
	return c.Store.Save(ctx, snap)
}

func TestSyncerFlushAndRestore(t *testing.T) {
	_, client := setupTestRedis(t)
	store := &countingStore{Store: NewRedisStore(client)}
	ctx := context.Background()

	reg := newRegistry(t)
	_, err := reg.CreateConfig("sales", []string{"111", "222", "333"})
	require.NoError(t, err)
	_, err = reg.RecordDelta("sales", warmup.MetricsDelta{MessagesSent: 3, MessagesReceived: 2})
	require.NoError(t, err)

	syncer := NewSyncer(reg, store, time.Minute)
	n, err := syncer.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Unchanged state is not written again.
	n, err = syncer.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, store.saves)

	_, err = reg.RecordDelta("sales", warmup.MetricsDelta{MessagesReceived: 1})
	require.NoError(t, err)
	n, err = syncer.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fresh := newRegistry(t)
	restored, err := NewSyncer(fresh, store, time.Minute).Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	today, err := fresh.TodayMetrics("sales")
	require.NoError(t, err)
	assert.Equal(t, 3, today.MessagesSent)
	assert.Equal(t, 3, today.MessagesReceived)
}

func TestSyncerRestoreSkipsInvalid(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleSnapshot("sales", 2)))
	require.NoError(t, store.Save(ctx, sampleSnapshot("broken", 9)))

	reg := newRegistry(t)
	restored, err := NewSyncer(reg, store, time.Minute).Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.Equal(t, []string{"sales"}, reg.Instances())
}

func TestSyncerStartFlushesOnStop(t *testing.T) {
	_, client := setupTestRedis(t)
	store := NewRedisStore(client)

	reg := newRegistry(t)
	_, err := reg.CreateConfig("sales", []string{"111"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSyncer(reg, store, time.Hour).Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("syncer did not stop")
	}

	snap, err := store.Load(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Config.CurrentStage)
}
