// Package testformat defines the data model of unified test format files.
//
// A test file declares global run-on requirements, the entities a test needs
// (clients, databases, collections, sessions, buckets and threads), seed data
// and an ordered list of test cases. Each test case lists operations together
// with their expected errors or results, the events each client is expected to
// publish, and the expected final contents of collections.
//
// # Strictness
//
// The schema is closed. Every structural type rejects keys it does not
// declare, both at the top level and inside nested documents, so a typo in a
// test file fails loudly at load time instead of silently turning an
// expectation off:
//
//	f, err := testformat.LoadFile("crud/insertOne.yml")
//	if err != nil {
//	    log.Fatal(err) // e.g. field runOnRequirement not found in type testformat.TestFile
//	}
//
// Entity declarations are a tagged union: each list element has exactly one
// key (client, database, collection, session, bucket or thread) and the key
// selects the variant.
//
// ValidateSchema performs an additional validation pass against an embedded
// CUE schema. It reports value-level problems (wrong enum values, missing
// required fields) with CUE's path-qualified messages.
//
// # Schema versions
//
// Schema versions may be written with one, two or three components ("1",
// "1.5", "1.5.2"). They are padded to three components and parsed as strict
// semantic versions.
package testformat
