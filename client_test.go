package metawrite

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metawrite/metawrite/pkg/errors"
	"github.com/metawrite/metawrite/pkg/types"
)

type stubTransport struct {
	mu        sync.Mutex
	defType   string
	mutations int
	lastOwner string
}

func (s *stubTransport) ExecuteMutation(ctx context.Context, ownerID string, inputs []types.MetafieldInput) (*types.MutationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutations++
	s.lastOwner = ownerID
	return &types.MutationResult{OwnerID: ownerID}, nil
}

func (s *stubTransport) LookupDefinition(ctx context.Context, ownerType, namespace, key string) (types.TypeDescriptor, error) {
	if s.defType == "" {
		return types.TypeDescriptor{}, nil
	}
	return types.ParseType(s.defType)
}

func (s *stubTransport) LookupExistingAttribute(ctx context.Context, ownerID, namespace, key string) (*types.AttributeRecord, error) {
	return nil, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMissingConfig, errors.CodeOf(err))
}

func TestNew_ValidatesRemoteConfig(t *testing.T) {
	cfg := NewDefaultConfig() // no shop domain, no token
	_, err := New(cfg)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
}

func TestClient_WriteSingle(t *testing.T) {
	st := &stubTransport{defType: "number_integer"}
	client, err := New(NewDefaultConfig(), WithTransport(st), WithLogger(quietLogger()))
	require.NoError(t, err)

	outcome, err := client.WriteSingle(context.Background(), types.AttributeIdentity{
		OwnerID:   "gid://catalog/Product/1",
		Namespace: "custom",
		Key:       "count",
	}, "42", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "42", outcome.EncodedValue)
	assert.Equal(t, 1, st.mutations)
}

func TestClient_WriteBatch(t *testing.T) {
	st := &stubTransport{defType: "single_line_text_field"}
	client, err := New(NewDefaultConfig(), WithTransport(st), WithLogger(quietLogger()))
	require.NoError(t, err)

	outcome, err := client.WriteBatch(context.Background(), "gid://catalog/Product/2", []BatchItem{
		{Namespace: "custom", Key: "a", Value: "x"},
		{Namespace: "custom", Key: "b", Value: "y"},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, st.mutations)
	assert.Equal(t, "gid://catalog/Product/2", st.lastOwner)
}

func TestClient_WriteBatch_SizeBound(t *testing.T) {
	st := &stubTransport{defType: "single_line_text_field"}
	cfg := NewDefaultConfig()
	cfg.Batch.MaxItems = 2
	client, err := New(cfg, WithTransport(st), WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = client.WriteBatch(context.Background(), "gid://catalog/Product/2", []BatchItem{
		{Namespace: "custom", Key: "a", Value: "1"},
		{Namespace: "custom", Key: "b", Value: "2"},
		{Namespace: "custom", Key: "c", Value: "3"},
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBatchRejected, errors.CodeOf(err))
	assert.Equal(t, 0, st.mutations, "oversized batch must not reach the transport")
}

func TestClient_ExtraRecorderReceivesEvents(t *testing.T) {
	st := &stubTransport{defType: "boolean"}
	var mu sync.Mutex
	var kinds []types.EventKind
	rec := recorderFunc(func(ev types.OperationEvent) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, ev.Kind)
	})

	client, err := New(NewDefaultConfig(), WithTransport(st), WithLogger(quietLogger()), WithRecorder(rec))
	require.NoError(t, err)

	_, err = client.WriteSingle(context.Background(), types.AttributeIdentity{
		OwnerID:   "gid://catalog/Product/3",
		Namespace: "custom",
		Key:       "in_stock",
	}, true, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, kinds, types.EventWriteSuccess)
}

type recorderFunc func(types.OperationEvent)

func (f recorderFunc) Record(ev types.OperationEvent) { f(ev) }

func TestClient_StartWithoutMetricsIsNoop(t *testing.T) {
	client, err := New(NewDefaultConfig(), WithTransport(&stubTransport{}), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.NoError(t, client.Start())
	assert.NoError(t, client.Shutdown(context.Background()))
}
