package activitypub

import "fmt"

// RelayActor builds the relay's own Service actor document, served at
// GET /actor (§6).
func RelayActor(domain string, keys *KeyPair) Actor {
	id := "https://" + domain + "/actor"
	inbox := "https://" + domain + "/inbox"
	return Actor{
		Context:           DefaultContext,
		ID:                id,
		Type:              "Service",
		PreferredUsername: "relay",
		Name:              "ActivityRelay",
		Summary:           fmt.Sprintf("ActivityPub relay at %s", domain),
		Inbox:             inbox,
		Followers:         id + "/followers",
		PublicKey: &PublicKey{
			ID:           keys.ID,
			Owner:        id,
			PublicKeyPem: keys.PublicPEM,
		},
		Endpoints: &Endpoints{SharedInbox: inbox},
	}
}

// RelayWebFinger builds the discovery document for acct:relay@domain.
func RelayWebFinger(domain string) WebFingerResponse {
	actorID := "https://" + domain + "/actor"
	return WebFingerResponse{
		Subject: "acct:relay@" + domain,
		Aliases: []string{actorID},
		Links: []WebFingerLink{
			{Rel: "self", Type: "application/activity+json", Href: actorID},
		},
	}
}
