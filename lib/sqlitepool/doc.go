// Copyright 2026 The RqCore Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides a SQLite connection pool with standard
// pragmas for the deployment ledger.
//
// The package is intentionally thin: it applies pragmas and exposes
// the underlying zombiezen types directly. Callers write SQL, use
// sqlitex.Execute for cached statements, and manage transactions
// themselves. There is no query-builder layer.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/home/rq/RQ/state/deploy.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
package sqlitepool
