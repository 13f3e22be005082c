package feed

import (
	"context"
	"errors"
	"testing"

	"edumarket-service/internal/domain/notification"
	"edumarket-service/internal/metrics"
	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	rows map[string]*notification.Notification
	err  error
}

func (f *fakeFetcher) FindByID(_ context.Context, id string) (*notification.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	n, ok := f.rows[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return n, nil
}

type recorder struct {
	invalidated []string
	ops         []notification.ChangeOp
	sent        []*notification.Notification
}

func (r *recorder) InvalidateUnread(_ context.Context, userID string) {
	r.invalidated = append(r.invalidated, userID)
}

func (r *recorder) BroadcastNotificationChange(op notification.ChangeOp, n *notification.Notification) {
	r.ops = append(r.ops, op)
	r.sent = append(r.sent, n)
}

func TestDispatch_InsertAndUpdate(t *testing.T) {
	rec := &recorder{}
	m := metrics.New()
	fetcher := &fakeFetcher{rows: map[string]*notification.Notification{
		"n1": {ID: "n1", UserID: "u1", Title: "hello"},
	}}
	d := NewDispatcher(fetcher, rec, rec, nil, m)

	require.NoError(t, d.Dispatch(context.Background(), `{"op":"INSERT","id":"n1","user_id":"u1"}`))
	require.NoError(t, d.Dispatch(context.Background(), `{"op":"UPDATE","id":"n1","user_id":"u1"}`))

	assert.Equal(t, []notification.ChangeOp{notification.ChangeInsert, notification.ChangeUpdate}, rec.ops)
	assert.Equal(t, "hello", rec.sent[0].Title)
	assert.Equal(t, []string{"u1", "u1"}, rec.invalidated)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedEvents.WithLabelValues("INSERT")))
}

func TestDispatch_MissingRowIsSkipped(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(&fakeFetcher{}, rec, rec, nil, nil)

	require.NoError(t, d.Dispatch(context.Background(), `{"op":"INSERT","id":"gone","user_id":"u1"}`))
	assert.Empty(t, rec.sent)
}

func TestDispatch_BadPayloads(t *testing.T) {
	rec := &recorder{}
	m := metrics.New()
	d := NewDispatcher(&fakeFetcher{err: errors.New("db down")}, rec, rec, nil, m)

	assert.Error(t, d.Dispatch(context.Background(), `not json`))
	assert.Error(t, d.Dispatch(context.Background(), `{"op":"DELETE","id":"n1","user_id":"u1"}`))
	assert.Error(t, d.Dispatch(context.Background(), `{"op":"INSERT","id":"n1","user_id":"u1"}`))

	assert.Empty(t, rec.sent)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.FeedErrors))
}
