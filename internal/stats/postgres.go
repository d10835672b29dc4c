// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/parasitepool/parastats-sub001/errors"
)

// InitPostgresDB connects to the specified database and creates all tables
// required by parastats.
func InitPostgresDB(host string, port uint32, user, pass, dbName string) (*PostgresDB, error) {
	const funcName = "InitPostgresDB"

	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s "+
		"password=%s dbname=%s sslmode=disable",
		host, port, user, pass, dbName)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to open postgres: %v", funcName, err)
		return nil, errors.DBError(errors.DBOpen, desc)
	}

	// Send a Ping() to validate the db connection. This is because the Open()
	// func does not actually create a connection to the database, it just
	// validates the provided arguments.
	err = db.Ping()
	if err != nil {
		desc := fmt.Sprintf("%s: unable to connect to postgres: %v", funcName, err)
		return nil, errors.DBError(errors.DBOpen, desc)
	}

	// Create all of the tables required by parastats.
	_, err = db.Exec(createTableParticipants)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(createTableWatermarks)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(createTableSubmissions)
	if err != nil {
		return nil, err
	}

	return &PostgresDB{db}, nil
}

// Close closes the postgres database connection.
func (db *PostgresDB) Close() error {
	return db.DB.Close()
}

// purge wipes all tables. Used for testing.
func (db *PostgresDB) purge() error {
	_, err := db.DB.Exec(purgeDB)
	return err
}

// Backup is not implemented for postgres database.
func (db *PostgresDB) Backup(fileName string) error {
	return errors.New("Backup is not implemented for postgres database")
}

// decodeWatermarkRows deserializes the provided SQL rows into a slice of
// IntervalWatermark structs.
func decodeWatermarkRows(rows *sql.Rows) ([]*IntervalWatermark, error) {
	var toReturn []*IntervalWatermark
	for rows.Next() {
		var intervalID, intervalTime, createdOn int64
		var address string
		var difficulty float64
		err := rows.Scan(&intervalID, &address, &difficulty, &intervalTime,
			&createdOn)
		if err != nil {
			return nil, err
		}

		watermark := &IntervalWatermark{intervalID, address, difficulty,
			intervalTime, createdOn}
		toReturn = append(toReturn, watermark)
	}

	err := rows.Err()
	if err != nil {
		return nil, err
	}

	return toReturn, nil
}

// decodeSubmissionRows deserializes the provided SQL rows into a slice of
// IntervalSubmission structs.
func decodeSubmissionRows(rows *sql.Rows) ([]*IntervalSubmission, error) {
	var toReturn []*IntervalSubmission
	for rows.Next() {
		var intervalID int64
		var address string
		var difficulty float64
		err := rows.Scan(&intervalID, &address, &difficulty)
		if err != nil {
			return nil, err
		}

		submission := &IntervalSubmission{intervalID, address, difficulty}
		toReturn = append(toReturn, submission)
	}

	err := rows.Err()
	if err != nil {
		return nil, err
	}

	return toReturn, nil
}

// fetchParticipant fetches the participant referenced by the provided
// address. Returns an error if the participant is not found.
func (db *PostgresDB) fetchParticipant(address string) (*Participant, error) {
	const funcName = "fetchParticipant"
	var participant Participant
	err := db.DB.QueryRow(selectParticipant, address).Scan(&participant.Address,
		&participant.Active, &participant.Public, &participant.BestDifficulty,
		&participant.IntervalCount, &participant.CreatedOn,
		&participant.UpdatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			desc := fmt.Sprintf("%s: no participant found for address %s",
				funcName, address)
			return nil, errors.DBError(errors.ValueNotFound, desc)
		}
		return nil, err
	}
	return &participant, nil
}

// persistParticipant saves the participant to the database. Returns an error
// if a participant already exists for the same address.
func (db *PostgresDB) persistParticipant(p *Participant) error {
	const funcName = "persistParticipant"
	_, err := db.DB.Exec(insertParticipant, p.Address, p.Active, p.Public,
		p.BestDifficulty, p.IntervalCount, p.CreatedOn, p.UpdatedOn)
	if err != nil {
		var pqError *pq.Error
		if errors.As(err, &pqError) {
			if pqError.Code.Name() == "unique_violation" {
				desc := fmt.Sprintf("%s: participant %s already exists",
					funcName, p.Address)
				return errors.DBError(errors.ValueFound, desc)
			}
		}
		return err
	}
	return nil
}

// upsertParticipantStats creates the participant referenced by the provided
// address if it does not exist yet and folds the provided observations into
// its aggregates. The best-ever difficulty only ever increases.
func (db *PostgresDB) upsertParticipantStats(address string, bestDifficulty float64,
	newIntervals int64) error {

	_, err := db.DB.Exec(upsertParticipantAggregates, address, bestDifficulty,
		newIntervals, time.Now().Unix())
	return err
}

// setParticipantVisibility updates the public visibility flag of an existing
// participant.
func (db *PostgresDB) setParticipantVisibility(address string, public bool) error {
	const funcName = "setParticipantVisibility"
	result, err := db.DB.Exec(updateParticipantVisibility, address, public,
		time.Now().Unix())
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		desc := fmt.Sprintf("%s: no participant found for address %s",
			funcName, address)
		return errors.DBError(errors.ValueNotFound, desc)
	}
	return nil
}

// deactivateParticipant marks an existing participant as inactive.
// Participants are never physically deleted.
func (db *PostgresDB) deactivateParticipant(address string) error {
	const funcName = "deactivateParticipant"
	result, err := db.DB.Exec(updateParticipantActive, address,
		time.Now().Unix())
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		desc := fmt.Sprintf("%s: no participant found for address %s",
			funcName, address)
		return errors.DBError(errors.ValueNotFound, desc)
	}
	return nil
}

// fetchWatermark fetches the watermark of the provided interval. Returns an
// error if no watermark exists for the interval.
func (db *PostgresDB) fetchWatermark(intervalID int64) (*IntervalWatermark, error) {
	const funcName = "fetchWatermark"
	var watermark IntervalWatermark
	err := db.DB.QueryRow(selectWatermark, intervalID).Scan(&watermark.IntervalID,
		&watermark.Address, &watermark.Difficulty, &watermark.IntervalTime,
		&watermark.CreatedOn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			desc := fmt.Sprintf("%s: no watermark found for interval %d",
				funcName, intervalID)
			return nil, errors.DBError(errors.ValueNotFound, desc)
		}
		return nil, err
	}
	return &watermark, nil
}

// upsertWatermark persists the provided watermark if no watermark exists yet
// for its interval or if it strictly exceeds the stored difficulty. The
// comparison and write happen in a single statement, so concurrent collectors
// cannot regress the stored value.
//
// Returns whether the watermark was written.
func (db *PostgresDB) upsertWatermark(w *IntervalWatermark) (bool, error) {
	var intervalID int64
	err := db.DB.QueryRow(insertWatermark, w.IntervalID, w.Address,
		w.Difficulty, w.IntervalTime, w.CreatedOn).Scan(&intervalID)
	if err != nil {
		// No row returned means the stored difficulty was equal or
		// greater and the write was skipped.
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// fetchRecentWatermarks returns the most recent watermarks.
//
// List is ordered by interval, most recent comes first.
func (db *PostgresDB) fetchRecentWatermarks(limit int) ([]*IntervalWatermark, error) {
	limit = clampLimit(limit, maxRecentWatermarks)
	rows, err := db.DB.Query(selectRecentWatermarks, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return decodeWatermarkRows(rows)
}

// fetchWatermarksByAddress returns watermarks won by the provided address.
//
// List is ordered by interval, most recent comes first.
func (db *PostgresDB) fetchWatermarksByAddress(address string, limit int) ([]*IntervalWatermark, error) {
	limit = clampLimit(limit, maxRecentWatermarks)
	rows, err := db.DB.Query(selectWatermarksByAddress, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return decodeWatermarkRows(rows)
}

// fetchPublicWinCounts aggregates the watermark table by winning address,
// excluding winners that opted out of public listing. Filtering before the
// limit is applied keeps public winners from being displaced by hidden ones.
//
// List is ordered by win count, most wins come first. Ties are broken by
// address so repeated calls with no intervening writes return a stable order.
func (db *PostgresDB) fetchPublicWinCounts(limit int) ([]*WinCount, error) {
	limit = clampLimit(limit, maxRecentWatermarks)
	rows, err := db.DB.Query(selectPublicWinCounts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var toReturn []*WinCount
	for rows.Next() {
		var count WinCount
		err := rows.Scan(&count.Address, &count.Wins, &count.TotalDifficulty,
			&count.AvgDifficulty, &count.BestDifficulty)
		if err != nil {
			return nil, err
		}
		toReturn = append(toReturn, &count)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return toReturn, nil
}

// upsertSubmission persists the provided submission if no record exists yet
// for its (interval, address) pair or if it exceeds the stored difficulty,
// using the same monotonic-max rule as watermarks.
//
// Returns whether a new record was created.
func (db *PostgresDB) upsertSubmission(s *IntervalSubmission) (bool, error) {
	var created bool
	err := db.DB.QueryRow(insertSubmission, s.IntervalID, s.Address,
		s.Difficulty).Scan(&created)
	if err != nil {
		// No row returned means the stored difficulty was equal or
		// greater and the write was skipped.
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return created, nil
}

// fetchIntervalSubmissions returns the submissions recorded for the provided
// interval, bounded by maxIntervalSubmissions regardless of the provided
// limit.
//
// List is ordered by difficulty, highest comes first.
func (db *PostgresDB) fetchIntervalSubmissions(intervalID int64, limit int) ([]*IntervalSubmission, error) {
	limit = clampLimit(limit, maxIntervalSubmissions)
	rows, err := db.DB.Query(selectIntervalSubmissions, intervalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return decodeSubmissionRows(rows)
}

// fetchSubmissionsByAddress returns the submission history of the provided
// address.
//
// List is ordered by interval, most recent comes first.
func (db *PostgresDB) fetchSubmissionsByAddress(address string, limit int) ([]*IntervalSubmission, error) {
	limit = clampLimit(limit, maxRecentWatermarks)
	rows, err := db.DB.Query(selectSubmissionsByAddress, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return decodeSubmissionRows(rows)
}
