package stressor

import (
	"encoding/json"
	"fmt"
)

// lastOperationRecord is the value carried by the LastOperation(threadId)
// checkpoint key: the id of the operation the worker has just completed (a
// restart resumes at OperationID+1) and the RNG seed at the moment the
// checkpoint was written (spec.md §6, §9).
type lastOperationRecord struct {
	OperationID int64 `json:"operationId"`
	RandSeed    int64 `json:"randSeed"`
}

// checkerRecord is the value carried by a checkerKey(slaveIdx, threadId)
// watermark; only OperationID is consumed by the core.
type checkerRecord struct {
	OperationID int64 `json:"operationId"`
}

func lastOperationKey(threadID int) string {
	return fmt.Sprintf("last-operation/%d", threadID)
}

func checkerKey(slaveIdx, threadID int) string {
	return fmt.Sprintf("checker/%d/%d", slaveIdx, threadID)
}

func ignoredKey(slaveIdx, threadID int) string {
	return fmt.Sprintf("ignored/%d/%d", slaveIdx, threadID)
}

func encodeLastOperation(r lastOperationRecord) []byte {
	b, _ := json.Marshal(r)
	return b
}

func decodeLastOperation(b []byte) (lastOperationRecord, bool) {
	if b == nil {
		return lastOperationRecord{}, false
	}
	var r lastOperationRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return lastOperationRecord{}, false
	}
	return r, true
}

func decodeCheckerRecord(b []byte) (checkerRecord, bool) {
	if b == nil {
		return checkerRecord{}, false
	}
	var r checkerRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return checkerRecord{}, false
	}
	return r, true
}

func decodeIgnoredValue(b []byte) (int64, bool) {
	if b == nil {
		return 0, false
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return 0, false
	}
	return v, true
}

func encodeIgnoredValue(v int64) []byte {
	b, _ := json.Marshal(v)
	return b
}
