package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"duet/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaNotifier_MessageCreated(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{w: w, now: func() time.Time { return time.Unix(10, 0) }}

	msg := models.Message{ID: "m1", ChatID: "a1-b2", Sender: models.SenderByID("a1"), Content: "hi"}
	require.NoError(t, n.MessageCreated(context.Background(), msg))
	require.Len(t, w.msgs, 1)
	require.Equal(t, "a1-b2", string(w.msgs[0].Key))

	var evt Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &evt))
	require.Equal(t, EventMessageCreated, evt.Type)
	require.Equal(t, "b2", evt.RecipientID)
	require.Equal(t, "m1", evt.Message.ID)
	require.Equal(t, "a1", evt.Message.Sender.UserID())
}

func TestKafkaNotifier_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	n := &KafkaNotifier{w: w, now: time.Now}

	err := n.MessageCreated(context.Background(), models.Message{ChatID: "a1-b2", Sender: models.SenderByID("a1")})
	require.ErrorContains(t, err, "broker down")

	err = n.MessageCreated(context.Background(), models.Message{ChatID: "lobby", Sender: models.SenderByID("a1")})
	require.ErrorIs(t, err, models.ErrProtocol)
}
