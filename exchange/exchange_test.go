package exchange

import "encoding/json"
import "path/filepath"
import "testing"

import "github.com/stretchr/testify/require"

import "github.com/sirgallo/pstore"

func openTestDB(t *testing.T) *pstore.Database {
	path := filepath.Join(t.TempDir(), "exchange.db")
	db, err := pstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestImportExportRoundTrip(t *testing.T) {
	db := openTestDB(t)

	doc := &Document{
		Version: DocumentVersion,
		ID:      pstore.NewUUID().String(),
		Transactions: []TransactionObject{
			{
				Names: []string{"main.c", "util.c"},
				Paths: []string{"/src/main.c", "/src/util.c"},
				Debugline: map[string]json.RawMessage{
					"line1": json.RawMessage(`{"addr":1}`),
				},
				Fragments: map[string]json.RawMessage{
					"frag1": json.RawMessage(`{"size":32}`),
				},
				Compilations: map[string]json.RawMessage{
					"comp1": json.RawMessage(`{"triple":"x86_64"}`),
				},
			},
		},
	}

	require.NoError(t, Import(db, doc))

	got, err := Export(db)
	require.NoError(t, err)
	require.Len(t, got.Transactions, 1)

	txObj := got.Transactions[0]
	require.Equal(t, []string{"main.c", "util.c"}, txObj.Names)
	require.Equal(t, []string{"/src/main.c", "/src/util.c"}, txObj.Paths)
	require.JSONEq(t, `{"addr":1}`, string(txObj.Debugline["line1"]))
	require.JSONEq(t, `{"size":32}`, string(txObj.Fragments["frag1"]))
	require.JSONEq(t, `{"triple":"x86_64"}`, string(txObj.Compilations["comp1"]))
}

func TestImportMultipleTransactionObjectsPreservesOrder(t *testing.T) {
	db := openTestDB(t)

	doc := &Document{
		Version: DocumentVersion,
		ID:      pstore.NewUUID().String(),
		Transactions: []TransactionObject{
			{Names: []string{"first"}},
			{Names: []string{"second"}},
			{Names: []string{"third"}},
		},
	}

	require.NoError(t, Import(db, doc))

	got, err := Export(db)
	require.NoError(t, err)
	require.Len(t, got.Transactions, 3)
	require.Equal(t, []string{"first"}, got.Transactions[0].Names)
	require.Equal(t, []string{"second"}, got.Transactions[1].Names)
	require.Equal(t, []string{"third"}, got.Transactions[2].Names)
}

func TestImportRejectsMissingID(t *testing.T) {
	db := openTestDB(t)

	doc := &Document{Version: DocumentVersion, Transactions: []TransactionObject{{}}}
	err := Import(db, doc)
	require.Error(t, err)
	require.True(t, pstore.Is(err, pstore.CodeRootObjectIncomplete))
}

func TestImportRejectsMissingTransactions(t *testing.T) {
	db := openTestDB(t)

	doc := &Document{Version: DocumentVersion, ID: pstore.NewUUID().String()}
	err := Import(db, doc)
	require.Error(t, err)
	require.True(t, pstore.Is(err, pstore.CodeRootObjectIncomplete))
}

func TestImportRejectsMalformedUUID(t *testing.T) {
	db := openTestDB(t)

	doc := &Document{Version: DocumentVersion, ID: "not-a-uuid", Transactions: []TransactionObject{{}}}
	err := Import(db, doc)
	require.Error(t, err)
	require.True(t, pstore.Is(err, pstore.CodeBadUUID))
}

func TestParseDocumentRejectsUnknownKey(t *testing.T) {
	raw := []byte(`{
		"version": 1,
		"id": "` + pstore.NewUUID().String() + `",
		"transactions": [{"names": ["a"], "bogus_field": true}]
	}`)

	_, err := ParseDocument(raw)
	require.Error(t, err)
	require.True(t, pstore.Is(err, pstore.CodeUnknownTransactionObjectKey))
}

func TestMarshalDocumentRoundTripsThroughParseDocument(t *testing.T) {
	doc := &Document{
		Version: DocumentVersion,
		ID:      pstore.NewUUID().String(),
		Transactions: []TransactionObject{
			{Names: []string{"a"}, Paths: []string{"/a"}},
		},
	}

	data, err := MarshalDocument(doc)
	require.NoError(t, err)

	parsed, err := ParseDocument(data)
	require.NoError(t, err)
	require.Equal(t, doc.ID, parsed.ID)
	require.Equal(t, doc.Transactions, parsed.Transactions)
}
