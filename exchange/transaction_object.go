// JSON schema for a single transaction object within an exported
// revision document (spec.md §6.3). Uses encoding/json's
// DisallowUnknownFields to surface unknown_transaction_object_key rather
// than a hand-rolled field-by-field validator, following the structural
// check original_source/include/pstore/exchange/import_transaction.hpp
// performs by hand.
package exchange

import (
	"bytes"
	"encoding/json"

	"github.com/sirgallo/pstore"
)

// TransactionObject mirrors one element of the exported document's
// "transactions" array: a compilation's name table, path table, and the
// debug-line/fragment/compilation records it produced.
type TransactionObject struct {
	Names        []string                   `json:"names"`
	Paths        []string                   `json:"paths"`
	Debugline    map[string]json.RawMessage `json:"debugline"`
	Fragments    map[string]json.RawMessage `json:"fragments"`
	Compilations map[string]json.RawMessage `json:"compilations"`
}

// Document is a complete exported revision.
type Document struct {
	Version      int                 `json:"version"`
	ID           string              `json:"id"`
	Transactions []TransactionObject `json:"transactions"`
}

// ParseDocument decodes a complete exported-revision document, rejecting
// any key the schema does not declare (§6.3 unknown_transaction_object_key).
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := unmarshalStrict(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// unmarshalStrict decodes data into v, rejecting unrecognized object
// keys with CodeUnknownTransactionObjectKey instead of json's default
// "unknown field" message, so callers get the taxonomy code spec.md §6.3
// names.
func unmarshalStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return pstore.NewError(pstore.CodeUnknownTransactionObjectKey, "unmarshalStrict", err)
	}
	return nil
}
