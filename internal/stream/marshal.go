package stream

import "encoding/json"

func mustMarshalMap(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
