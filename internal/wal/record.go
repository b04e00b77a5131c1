package wal

import (
	"encoding/binary"
	"fmt"
)

// Kind tags a log record with the 2PC step it records
type Kind uint8

const (
	KindPutReq Kind = iota + 1 // Phase-1 put request
	KindDelReq                 // Phase-1 delete request
	KindCommit                 // Global commit decision
	KindAbort                  // Global or local abort
)

func (k Kind) String() string {
	switch k {
	case KindPutReq:
		return "PUTREQ"
	case KindDelReq:
		return "DELREQ"
	case KindCommit:
		return "COMMIT"
	case KindAbort:
		return "ABORT"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Record is one log entry. Data-bearing records pack the key length as a
// uvarint, then the key, then the value; COMMIT and ABORT records carry no
// payload. Keys may contain any byte, including NUL.
type Record struct {
	Kind Kind
	Data []byte
}

// NewRecord packs key and value into a record of the given kind
func NewRecord(kind Kind, key, value string) Record {
	if key == "" && value == "" {
		return Record{Kind: kind}
	}
	data := make([]byte, 0, binary.MaxVarintLen64+len(key)+len(value))
	data = binary.AppendUvarint(data, uint64(len(key)))
	data = append(data, key...)
	data = append(data, value...)
	return Record{Kind: kind, Data: data}
}

// KeyValue unpacks the payload written by NewRecord. A payload whose length
// prefix does not fit is returned whole as the key.
func (r Record) KeyValue() (key, value string) {
	if len(r.Data) == 0 {
		return "", ""
	}
	n, size := binary.Uvarint(r.Data)
	if size <= 0 || n > uint64(len(r.Data)-size) {
		return string(r.Data), ""
	}
	rest := r.Data[size:]
	return string(rest[:n]), string(rest[n:])
}
