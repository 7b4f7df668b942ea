package tinyds

/*
TinyDS is a local datastore with App Engine datastore semantics, intended for development and testing. It is not
suitable for production use.

Entities are stored in a pluggable key/value engine (in memory, badger or leveldb) using an order preserving encoding
of keys and property values. Queries are evaluated in memory against the candidate entities of one kind and paged
through with cursors; composite index definitions are only checked, never materialized.

Building TinyDS produces one executable, tinyds-server, which serves the datastore over a JSON HTTP API.

The `tinyds` module is organized into the following packages under `kv`:

* `model`: keys, values, entities, queries and the errors shared by all packages.
* `util/codec`: the sortable byte encoding of numbers and strings.
* `storage`: the engine interface, its engines and the entity level backend on top of them.
* `idalloc`: numeric id allocation per kind.
* `query`: filter and order normalization, validation, evaluation and composite index requirements.
* `cursor`: live cursors and compiled cursors.
* `transaction`: the transaction coordinator and deferred actions.
* `datastore`: the store tying everything together.
* `indexfile`: index.yaml parsing.
* `server`: the HTTP API.
*/
