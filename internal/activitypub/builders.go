package activitypub

import "fmt"

// BuildAccept wraps a Follow (or Undo) activity in an Accept from the
// relay actor, the response §4.F's handshake requires.
func BuildAccept(relayActorID, objectActivityID string, object any) Envelope {
	raw, _ := marshalRaw(object)
	return Envelope{
		Context: DefaultContext,
		ID:      relayActorID + "#accept/" + shortID(objectActivityID),
		Type:    string(KindAccept),
		Actor:   relayActorID,
		Object:  raw,
	}
}

func BuildReject(relayActorID, objectActivityID string, object any) Envelope {
	raw, _ := marshalRaw(object)
	return Envelope{
		Context: DefaultContext,
		ID:      relayActorID + "#reject/" + shortID(objectActivityID),
		Type:    string(KindReject),
		Actor:   relayActorID,
		Object:  raw,
	}
}

// BuildFollow constructs the relay's reciprocal Follow of a newly
// subscribed instance, sent immediately after accepting its Follow
// (§4.F: "immediately enqueue an outbound Accept + reciprocal Follow").
func BuildFollow(relayActorID, targetActorID string) Envelope {
	raw, _ := marshalRaw(targetActorID)
	return Envelope{
		Context: DefaultContext,
		ID:      relayActorID + "#follow/" + shortID(targetActorID),
		Type:    string(KindFollow),
		Actor:   relayActorID,
		Object:  raw,
	}
}

// BuildUndoFollow wraps followActivityID (the relay's own prior Follow) in
// an Undo.
func BuildUndoFollow(relayActorID, followActivityID, targetActorID string) Envelope {
	inner := Envelope{
		ID:     followActivityID,
		Type:   string(KindFollow),
		Actor:  relayActorID,
		Object: mustMarshalRaw(targetActorID),
	}
	raw, _ := marshalRaw(inner)
	return Envelope{
		Context: DefaultContext,
		ID:      relayActorID + "#undo/" + shortID(followActivityID),
		Type:    string(KindUndo),
		Actor:   relayActorID,
		Object:  raw,
	}
}

// BuildAnnounce wraps activity in an Announce from the relay actor — the
// primary fan-out mechanism (§4.G), used unless the incoming activity is
// already an Announce by the subscriber itself.
func BuildAnnounce(relayActorID string, activity Envelope) Envelope {
	raw, _ := marshalRaw(activity.ID)
	return Envelope{
		Context: DefaultContext,
		ID:      relayActorID + "#announce/" + shortID(activity.ID),
		Type:    string(KindAnnounce),
		Actor:   relayActorID,
		Object:  raw,
		To:      StringOrArray{PublicURI},
	}
}

func shortID(iri string) string {
	h := fnv32(iri)
	return fmt.Sprintf("%08x", h)
}

// fnv32 is a tiny non-cryptographic hash used only to keep generated
// activity IDs short and stable for a given input IRI.
func fnv32(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	h := uint32(offset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
