// JSON import/export of whole revisions (spec.md §6.3). Grounded on
// original_source/include/pstore/exchange/import_transaction.hpp and
// import_uuid.hpp's validate-then-allocate shape, re-expressed with
// encoding/json instead of a hand-rolled parser.
//
// Entries are namespaced by transaction-object index and section so a
// round trip through Export/Import recovers the original document
// structure from the flat key/value trie: "<index>:names:<i>",
// "<index>:paths:<i>", "<index>:debugline:<key>", and so on.
package exchange

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirgallo/pstore"
)

// DocumentVersion is the schema version Export stamps onto every
// document it produces.
const DocumentVersion = 1

const (
	sectionNames        = "names"
	sectionPaths        = "paths"
	sectionDebugline    = "debugline"
	sectionFragments    = "fragments"
	sectionCompilations = "compilations"
)

// Import validates doc and re-issues its content as one transaction per
// element of doc.Transactions, committing each before moving to the
// next (§6.3).
func Import(db *pstore.Database, doc *Document) error {
	if doc == nil || doc.Transactions == nil || doc.ID == "" {
		return pstore.NewError(pstore.CodeRootObjectIncomplete, "Import", nil)
	}
	if _, err := pstore.ParseUUID(doc.ID); err != nil {
		return pstore.NewError(pstore.CodeBadUUID, "Import", err).WithDetail("id", doc.ID)
	}

	for i, txObj := range doc.Transactions {
		if err := importOne(db, i, txObj); err != nil {
			return err
		}
	}
	return nil
}

func importOne(db *pstore.Database, index int, txObj TransactionObject) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	idx, err := db.OpenIndex()
	if err != nil {
		tx.Rollback()
		return err
	}

	put := func(key string, value []byte) error {
		_, err := idx.InsertOrAssign(tx, []byte(key), value)
		return err
	}

	for i, name := range txObj.Names {
		if err := put(entryKey(index, sectionNames, strconv.Itoa(i)), []byte(name)); err != nil {
			tx.Rollback()
			return err
		}
	}
	for i, path := range txObj.Paths {
		if err := put(entryKey(index, sectionPaths, strconv.Itoa(i)), []byte(path)); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := putRawMap(put, index, sectionDebugline, txObj.Debugline); err != nil {
		tx.Rollback()
		return err
	}
	if err := putRawMap(put, index, sectionFragments, txObj.Fragments); err != nil {
		tx.Rollback()
		return err
	}
	if err := putRawMap(put, index, sectionCompilations, txObj.Compilations); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit(idx)
}

func putRawMap(put func(string, []byte) error, index int, section string, m map[string]json.RawMessage) error {
	for k, v := range m {
		if err := put(entryKey(index, section, k), []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

func entryKey(index int, section, rest string) string {
	return fmt.Sprintf("%d:%s:%s", index, section, rest)
}

// pendingTransactionObject accumulates one transaction object's entries
// during Export, keeping names/paths indexed by their original position
// since trie iteration visits entries in hash order, not insertion order.
type pendingTransactionObject struct {
	names        map[int]string
	paths        map[int]string
	debugline    map[string]json.RawMessage
	fragments    map[string]json.RawMessage
	compilations map[string]json.RawMessage
}

func newPendingTransactionObject() *pendingTransactionObject {
	return &pendingTransactionObject{
		names:        map[int]string{},
		paths:        map[int]string{},
		debugline:    map[string]json.RawMessage{},
		fragments:    map[string]json.RawMessage{},
		compilations: map[string]json.RawMessage{},
	}
}

func (p *pendingTransactionObject) finish() TransactionObject {
	return TransactionObject{
		Names:        orderedStrings(p.names),
		Paths:        orderedStrings(p.paths),
		Debugline:    p.debugline,
		Fragments:    p.fragments,
		Compilations: p.compilations,
	}
}

func orderedStrings(m map[int]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

// MarshalDocument serializes doc as the §6.3 JSON document.
func MarshalDocument(doc *Document) ([]byte, error) {
	return json.Marshal(doc)
}

// Export walks the database's current revision and reassembles it into
// a Document, the inverse of Import.
func Export(db *pstore.Database) (*Document, error) {
	idx, err := db.OpenIndex()
	if err != nil {
		return nil, err
	}

	byIndex := map[int]*pendingTransactionObject{}
	maxIndex := -1

	it := idx.Begin()
	for !it.Done() {
		if it.Err() != nil {
			return nil, it.Err()
		}

		index, section, rest, ok := parseEntryKey(string(it.Key()))
		if !ok {
			it.Next()
			continue
		}

		txObj, exists := byIndex[index]
		if !exists {
			txObj = newPendingTransactionObject()
			byIndex[index] = txObj
			if index > maxIndex {
				maxIndex = index
			}
		}

		value := append([]byte(nil), it.Value()...)
		switch section {
		case sectionNames:
			if i, err := strconv.Atoi(rest); err == nil {
				txObj.names[i] = string(value)
			}
		case sectionPaths:
			if i, err := strconv.Atoi(rest); err == nil {
				txObj.paths[i] = string(value)
			}
		case sectionDebugline:
			txObj.debugline[rest] = json.RawMessage(value)
		case sectionFragments:
			txObj.fragments[rest] = json.RawMessage(value)
		case sectionCompilations:
			txObj.compilations[rest] = json.RawMessage(value)
		}

		it.Next()
	}

	doc := &Document{Version: DocumentVersion, ID: db.UUID().String()}
	for i := 0; i <= maxIndex; i++ {
		if txObj, ok := byIndex[i]; ok {
			doc.Transactions = append(doc.Transactions, txObj.finish())
		}
	}
	return doc, nil
}

// parseEntryKey splits "<index>:<section>:<rest>" back into its parts.
func parseEntryKey(key string) (index int, section, rest string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return 0, "", "", false
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", false
	}
	return idx, parts[1], parts[2], true
}
