package scheduler

import "encoding/json"

// Serializer converts a task instance's payload to and from the opaque byte
// slice stored in the execution row. Tasks that carry typed data select a
// Serializer when they are registered; the default is JSON.
type Serializer interface {
	Serialize(payload any) ([]byte, error)
	Deserialize(data []byte, out any) error
}

// JSONSerializer is the default Serializer, used unless a task overrides it.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

func (JSONSerializer) Deserialize(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

var defaultSerializer Serializer = JSONSerializer{}
