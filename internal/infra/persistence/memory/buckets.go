package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the persistence buckets in the order durable stores write them.
var Buckets = []string{"batches", "measurements", "discrepancies", "sequences"}

// EncodeBuckets marshals each snapshot bucket to JSON.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		var (
			data []byte
			err  error
		)
		switch bucket {
		case "batches":
			data, err = json.Marshal(s.Batches)
		case "measurements":
			data, err = json.Marshal(s.Measurements)
		case "discrepancies":
			data, err = json.Marshal(s.Discrepancies)
		case "sequences":
			data, err = json.Marshal(s.Sequences)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals a stored bucket payload into the snapshot. Unknown
// buckets and empty payloads are ignored.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case "batches":
		target = &s.Batches
	case "measurements":
		target = &s.Measurements
	case "discrepancies":
		target = &s.Discrepancies
	case "sequences":
		target = &s.Sequences
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
