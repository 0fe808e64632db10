package activitypub

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeObjectIDAcceptsBareIRI(t *testing.T) {
	var e Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Follow","object":"https://relay.example/actor"}`), &e))

	id, err := e.ObjectID()
	require.NoError(t, err)
	require.Equal(t, "https://relay.example/actor", id)
}

func TestEnvelopeObjectIDAcceptsEmbeddedObject(t *testing.T) {
	var e Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Create","object":{"id":"https://a.example/s/1","type":"Note"}}`), &e))

	id, err := e.ObjectID()
	require.NoError(t, err)
	require.Equal(t, "https://a.example/s/1", id)
}

func TestEnvelopeKindDefaultsToUnknown(t *testing.T) {
	e := Envelope{Type: "SomeFutureActivity"}
	require.Equal(t, KindUnknown, e.Kind())
}

func TestEnvelopeIsPublicAudience(t *testing.T) {
	e := Envelope{To: StringOrArray{PublicURI}}
	require.True(t, e.IsPublicAudience())

	e2 := Envelope{To: StringOrArray{"https://a.example/followers"}}
	require.False(t, e2.IsPublicAudience())
}
