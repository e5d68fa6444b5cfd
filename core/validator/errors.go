// Package validator implements validate_block (spec.md §4.7): the
// structural/context-free half and the stateful half of block acceptance,
// sharing one error taxonomy (spec.md §7) with the rest of the module.
package validator

import "fmt"

// Kind names one of the failure conditions spec.md §7 enumerates.
type Kind string

const (
	InvalidEncoding  Kind = "InvalidEncoding"
	BadTimestamp     Kind = "BadTimestamp"
	BadDifficulty    Kind = "BadDifficulty"
	InsufficientWork Kind = "InsufficientWork"
	DatasetError     Kind = "DatasetError"
	BadTxRoot        Kind = "BadTxRoot"
	BadTx            Kind = "BadTx"
	BadStateRoot     Kind = "BadStateRoot"
	BadReceiptsRoot  Kind = "BadReceiptsRoot"
	UnknownParent    Kind = "UnknownParent"
)

// Error is a typed validation failure, carrying the structured (kind,
// detail) pair spec.md §7's taxonomy needs — callers that only care about
// the failure class can match on Kind without parsing Error().
type Error struct {
	Kind    Kind
	TxIndex int // meaningful only for Kind == BadTx; -1 otherwise
	Detail  string
}

func (e *Error) Error() string {
	if e.Kind == BadTx {
		return fmt.Sprintf("validator: %s at tx[%d]: %s", e.Kind, e.TxIndex, e.Detail)
	}
	return fmt.Sprintf("validator: %s: %s", e.Kind, e.Detail)
}

func newErr(kind Kind, detail string) *Error {
	return &Error{Kind: kind, TxIndex: -1, Detail: detail}
}

func newTxErr(index int, detail string) *Error {
	return &Error{Kind: BadTx, TxIndex: index, Detail: detail}
}
