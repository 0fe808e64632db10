package activitypub

import "encoding/json"

func marshalRaw(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func mustMarshalRaw(v any) json.RawMessage {
	raw, err := marshalRaw(v)
	if err != nil {
		panic(err)
	}
	return raw
}
