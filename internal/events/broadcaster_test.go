package events

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/nebula-dataapi/internal/domain"
)

type message struct {
	subject string
	data    []byte
}

type recordingPublisher struct {
	sent []message
	err  error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.sent = append(p.sent, message{subject: subject, data: data})
	return p.err
}

func usersModel() *domain.Model {
	return &domain.Model{
		TableName: "users",
		Fields: []domain.Field{
			{Name: "name", Type: domain.TypeString},
			{Name: "ssn", Type: domain.TypeString, IsHidden: true},
		},
	}
}

func TestBroadcast(t *testing.T) {
	pub := &recordingPublisher{}
	b := New(pub)

	data := map[string]any{"id": 1, "name": "ada", "ssn": "123", "password": "x"}
	b.Broadcast(usersModel(), domain.EventCreated, data)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, "nebula.data.users.created", pub.sent[0].subject)

	var change Change
	require.NoError(t, json.Unmarshal(pub.sent[0].data, &change))
	assert.Equal(t, "created", change.Event)
	assert.Equal(t, "users", change.Table)
	assert.Equal(t, map[string]any{"id": float64(1), "name": "ada"}, change.Data)
	assert.Contains(t, data, "ssn", "caller data is untouched")
}

func TestBroadcastSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats: connection closed")}
	assert.NotPanics(t, func() {
		New(pub).Broadcast(usersModel(), domain.EventDeleted, map[string]any{"id": 1})
	})
	assert.Len(t, pub.sent, 1)
}

func TestNop(t *testing.T) {
	var nilBroadcaster *Broadcaster
	assert.NotPanics(t, func() {
		Nop().Broadcast(usersModel(), domain.EventCreated, map[string]any{})
		nilBroadcaster.Broadcast(usersModel(), domain.EventCreated, map[string]any{})
		nilBroadcaster.Close()
		Nop().Close()
	})

	b, err := Connect("")
	require.NoError(t, err)
	assert.Nil(t, b.pub)
}

func TestConnectLive(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	b, err := Connect(url)
	require.NoError(t, err)
	defer b.Close()
	b.Broadcast(usersModel(), domain.EventUpdated, map[string]any{"id": 1})
}
