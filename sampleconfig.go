// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

// ConfigFileContents is a string containing the commented example config for
// parastats.
const ConfigFileContents = `[Application Options]
; ------------------------------------------------------------------------------
; Debug settings
; ------------------------------------------------------------------------------
; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use parastats --debuglevel=show to
; list available subsystems.
; debuglevel=

; ------------------------------------------------------------------------------
; Data settings
; ------------------------------------------------------------------------------
; The home directory of parastats.
; homedir=

; The directory to store data.
; datadir=

; The config file directory.
; configfile=

; The log file directory.
; logdir=

; ------------------------------------------------------------------------------
; DB settings
; ------------------------------------------------------------------------------
; The database file, only used for the bolt backend.
; dbfile=

; Use the postgres backend instead of bolt.
; postgres=

; Connection settings of the postgres backend.
; postgreshost=
; postgresport=
; postgresuser=
; postgrespass=
; postgresdbname=

; ------------------------------------------------------------------------------
; Network settings
; ------------------------------------------------------------------------------
; The listening address of the API server.
; listen=

; Serve the API over plain HTTP.
; notls=

; The TLS certificate and key of the API server.
; tlscert=
; tlskey=

; Use Letsencrypt HTTPS for the API server, requires a domain.
; uselehttps=
; domain=

; ------------------------------------------------------------------------------
; Source settings
; ------------------------------------------------------------------------------
; The base URL of the share submission source.
; sourceurl=

; The submission source request timeout in seconds.
; sourcetimeout=

; ------------------------------------------------------------------------------
; Engine settings
; ------------------------------------------------------------------------------
; The number of API requests allowed per client per window and the window
; length in seconds.
; requestlimit=
; requestwindow=

; The wait between sweeps of expired rate limit entries in seconds.
; sweepinterval=

; The bound on concurrent interval collections and the deadline for
; reporting triggered collections in seconds.
; maxcollections=
; collecttimeout=

; The wait between watermark gap scans in seconds and the bound on backfill
; collections per second.
; reconcileinterval=
; reconcilerate=
`
