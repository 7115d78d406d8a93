package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalDistributorState serializes a DistributorState to JSON bytes.
func MarshalDistributorState(state *DistributorState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("cannot marshal nil DistributorState")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DistributorState to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalDistributorState deserializes a DistributorState from JSON bytes.
func UnmarshalDistributorState(data []byte) (*DistributorState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var state DistributorState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to DistributorState: %w", err)
	}

	return &state, nil
}

// MarshalClaimRecord serializes a ClaimRecord to JSON bytes.
func MarshalClaimRecord(record *ClaimRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("cannot marshal nil ClaimRecord")
	}

	return json.Marshal(record)
}

// UnmarshalClaimRecord deserializes a ClaimRecord from JSON bytes.
func UnmarshalClaimRecord(data []byte) (*ClaimRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var record ClaimRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to ClaimRecord: %w", err)
	}

	return &record, nil
}
