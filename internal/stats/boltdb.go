// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/parasitepool/parastats-sub001/errors"
)

var (
	// statsBkt is the main bucket of the stats engine, all other buckets
	// are nested within it.
	statsBkt = []byte("statsbkt")
	// participantBkt stores all tracked participants keyed by address.
	participantBkt = []byte("participantbkt")
	// watermarkBkt stores per-interval highest-difficulty records keyed by
	// big endian interval id, which keeps cursor scans ordered by interval.
	watermarkBkt = []byte("watermarkbkt")
	// submissionBkt stores per-participant best difficulties per interval,
	// keyed by big endian interval id followed by the address.
	submissionBkt = []byte("submissionbkt")
	// versionK is the key of the current version of the database.
	versionK = []byte("version")

	// BoltBackupFile is the database backup file name.
	BoltBackupFile = "backup.kv"
)

// BoltDBVersion is the latest version of the bolt database that is understood
// by the stats engine.
const BoltDBVersion = 1

// openBoltDB creates a connection to the provided bolt storage, the returned
// connection storage should always be closed after use.
func openBoltDB(storage string) (*BoltDB, error) {
	const funcName = "openBoltDB"
	db, err := bolt.Open(storage, 0600,
		&bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		desc := fmt.Sprintf("%s: unable to open db file: %v", funcName, err)
		return nil, errors.DBError(errors.DBOpen, desc)
	}
	return &BoltDB{db}, nil
}

// createNestedBucket creates a nested child bucket of the provided parent.
func createNestedBucket(parent *bolt.Bucket, child []byte) error {
	const funcName = "createNestedBucket"
	_, err := parent.CreateBucketIfNotExists(child)
	if err != nil {
		desc := fmt.Sprintf("%s: unable to create %s bucket: %v",
			funcName, string(child), err)
		return errors.DBError(errors.BucketCreate, desc)
	}
	return nil
}

// createBuckets creates all storage buckets of the stats engine.
func createBuckets(db *BoltDB) error {
	const funcName = "createBuckets"
	return db.DB.Update(func(tx *bolt.Tx) error {
		var err error
		sbkt := tx.Bucket(statsBkt)
		if sbkt == nil {
			sbkt, err = tx.CreateBucketIfNotExists(statsBkt)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to create %s bucket: %v",
					funcName, string(statsBkt), err)
				return errors.DBError(errors.BucketCreate, desc)
			}
			vbytes := make([]byte, 4)
			binary.LittleEndian.PutUint32(vbytes, BoltDBVersion)
			err = sbkt.Put(versionK, vbytes)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to persist version: %v",
					funcName, err)
				return errors.DBError(errors.PersistEntry, desc)
			}
		}

		err = createNestedBucket(sbkt, participantBkt)
		if err != nil {
			return err
		}
		err = createNestedBucket(sbkt, watermarkBkt)
		if err != nil {
			return err
		}
		return createNestedBucket(sbkt, submissionBkt)
	})
}

// InitBoltDB handles the creation of a bolt database.
func InitBoltDB(dbFile string) (*BoltDB, error) {
	db, err := openBoltDB(dbFile)
	if err != nil {
		return nil, err
	}

	err = createBuckets(db)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// fetchStatsBucket is a helper function for getting the stats bucket.
func fetchStatsBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	const funcName = "fetchStatsBucket"
	sbkt := tx.Bucket(statsBkt)
	if sbkt == nil {
		desc := fmt.Sprintf("%s: bucket %s not found", funcName,
			string(statsBkt))
		return nil, errors.DBError(errors.BucketNotFound, desc)
	}
	return sbkt, nil
}

// fetchBucket is a helper function for getting the requested bucket.
func fetchBucket(tx *bolt.Tx, bucketID []byte) (*bolt.Bucket, error) {
	const funcName = "fetchBucket"
	sbkt, err := fetchStatsBucket(tx)
	if err != nil {
		return nil, err
	}
	bkt := sbkt.Bucket(bucketID)
	if bkt == nil {
		desc := fmt.Sprintf("%s: bucket %s not found", funcName,
			string(bucketID))
		return nil, errors.DBError(errors.BucketNotFound, desc)
	}
	return bkt, nil
}

// Close closes the bolt database connection.
func (db *BoltDB) Close() error {
	return db.DB.Close()
}

// Backup saves a copy of the db to file. The file will be saved in the same
// directory as the current db file.
func (db *BoltDB) Backup(fileName string) error {
	backupPath := filepath.Join(filepath.Dir(db.DB.Path()), fileName)
	return db.DB.View(func(tx *bolt.Tx) error {
		err := tx.CopyFile(backupPath, 0600)
		if err != nil {
			desc := fmt.Sprintf("unable to backup db: %v", err)
			return errors.DBError(errors.Backup, desc)
		}
		return nil
	})
}

// fetchParticipant fetches the participant referenced by the provided
// address. Returns an error if the participant is not found.
func (db *BoltDB) fetchParticipant(address string) (*Participant, error) {
	const funcName = "fetchParticipant"
	var participant Participant
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, participantBkt)
		if err != nil {
			return err
		}
		v := bkt.Get([]byte(address))
		if v == nil {
			desc := fmt.Sprintf("%s: no participant found for address %s",
				funcName, address)
			return errors.DBError(errors.ValueNotFound, desc)
		}
		err = json.Unmarshal(v, &participant)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to unmarshal participant: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// persistParticipant saves the participant to the database. Returns an error
// if a participant already exists for the same address.
func (db *BoltDB) persistParticipant(p *Participant) error {
	const funcName = "persistParticipant"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, participantBkt)
		if err != nil {
			return err
		}

		id := []byte(p.Address)
		if bkt.Get(id) != nil {
			desc := fmt.Sprintf("%s: participant %s already exists",
				funcName, p.Address)
			return errors.DBError(errors.ValueFound, desc)
		}
		pBytes, err := json.Marshal(p)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal participant: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = bkt.Put(id, pBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist participant: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	})
}

// upsertParticipantStats creates the participant referenced by the provided
// address if it does not exist yet and folds the provided observations into
// its aggregates. The best-ever difficulty only ever increases.
func (db *BoltDB) upsertParticipantStats(address string, bestDifficulty float64,
	newIntervals int64) error {

	const funcName = "upsertParticipantStats"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, participantBkt)
		if err != nil {
			return err
		}

		id := []byte(address)
		participant := NewParticipant(address)
		if v := bkt.Get(id); v != nil {
			err = json.Unmarshal(v, participant)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal participant: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
		}

		if bestDifficulty > participant.BestDifficulty {
			participant.BestDifficulty = bestDifficulty
		}
		participant.IntervalCount += newIntervals
		participant.UpdatedOn = time.Now().Unix()

		pBytes, err := json.Marshal(participant)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal participant: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = bkt.Put(id, pBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist participant: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	})
}

// mutateParticipant applies the provided mutation to an existing participant.
// Returns an error if the participant is not found.
func (db *BoltDB) mutateParticipant(address string, mutate func(*Participant)) error {
	const funcName = "mutateParticipant"
	return db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, participantBkt)
		if err != nil {
			return err
		}

		id := []byte(address)
		v := bkt.Get(id)
		if v == nil {
			desc := fmt.Sprintf("%s: no participant found for address %s",
				funcName, address)
			return errors.DBError(errors.ValueNotFound, desc)
		}
		var participant Participant
		err = json.Unmarshal(v, &participant)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to unmarshal participant: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}

		mutate(&participant)
		participant.UpdatedOn = time.Now().Unix()

		pBytes, err := json.Marshal(&participant)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal participant: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = bkt.Put(id, pBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist participant: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	})
}

// setParticipantVisibility updates the public visibility flag of an existing
// participant.
func (db *BoltDB) setParticipantVisibility(address string, public bool) error {
	return db.mutateParticipant(address, func(p *Participant) {
		p.Public = public
	})
}

// deactivateParticipant marks an existing participant as inactive.
// Participants are never physically deleted.
func (db *BoltDB) deactivateParticipant(address string) error {
	return db.mutateParticipant(address, func(p *Participant) {
		p.Active = false
	})
}

// fetchWatermark fetches the watermark of the provided interval. Returns an
// error if no watermark exists for the interval.
func (db *BoltDB) fetchWatermark(intervalID int64) (*IntervalWatermark, error) {
	const funcName = "fetchWatermark"
	var watermark IntervalWatermark
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, watermarkBkt)
		if err != nil {
			return err
		}
		v := bkt.Get(intervalIDToBigEndianBytes(intervalID))
		if v == nil {
			desc := fmt.Sprintf("%s: no watermark found for interval %d",
				funcName, intervalID)
			return errors.DBError(errors.ValueNotFound, desc)
		}
		err = json.Unmarshal(v, &watermark)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to unmarshal watermark: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &watermark, nil
}

// upsertWatermark persists the provided watermark if no watermark exists yet
// for its interval or if it strictly exceeds the stored difficulty. An
// equal-or-greater stored difficulty is left untouched, which keeps
// re-collection idempotent and the stored value monotonic. The comparison and
// write happen in a single transaction.
//
// Returns whether the watermark was written.
func (db *BoltDB) upsertWatermark(w *IntervalWatermark) (bool, error) {
	const funcName = "upsertWatermark"
	var written bool
	err := db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, watermarkBkt)
		if err != nil {
			return err
		}

		id := intervalIDToBigEndianBytes(w.IntervalID)
		if v := bkt.Get(id); v != nil {
			var existing IntervalWatermark
			err = json.Unmarshal(v, &existing)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal watermark: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if existing.Difficulty >= w.Difficulty {
				return nil
			}
		}

		wBytes, err := json.Marshal(w)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal watermark: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = bkt.Put(id, wBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist watermark: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		written = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// fetchRecentWatermarks returns the most recent watermarks.
//
// List is ordered by interval, most recent comes first.
func (db *BoltDB) fetchRecentWatermarks(limit int) ([]*IntervalWatermark, error) {
	const funcName = "fetchRecentWatermarks"
	limit = clampLimit(limit, maxRecentWatermarks)
	watermarks := make([]*IntervalWatermark, 0, limit)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, watermarkBkt)
		if err != nil {
			return err
		}

		cursor := bkt.Cursor()
		for k, v := cursor.Last(); k != nil && len(watermarks) < limit; k, v = cursor.Prev() {
			var watermark IntervalWatermark
			err := json.Unmarshal(v, &watermark)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal watermark: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			watermarks = append(watermarks, &watermark)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return watermarks, nil
}

// fetchWatermarksByAddress returns watermarks won by the provided address.
//
// List is ordered by interval, most recent comes first.
func (db *BoltDB) fetchWatermarksByAddress(address string, limit int) ([]*IntervalWatermark, error) {
	const funcName = "fetchWatermarksByAddress"
	limit = clampLimit(limit, maxRecentWatermarks)
	watermarks := make([]*IntervalWatermark, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, watermarkBkt)
		if err != nil {
			return err
		}

		cursor := bkt.Cursor()
		for k, v := cursor.Last(); k != nil && len(watermarks) < limit; k, v = cursor.Prev() {
			var watermark IntervalWatermark
			err := json.Unmarshal(v, &watermark)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal watermark: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if watermark.Address == address {
				watermarks = append(watermarks, &watermark)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return watermarks, nil
}

// fetchPublicWinCounts aggregates the watermark table by winning address,
// excluding winners that opted out of public listing. Filtering before the
// limit is applied keeps public winners from being displaced by hidden ones.
//
// List is ordered by win count, most wins come first. Ties are broken by
// address so repeated calls with no intervening writes return a stable order.
func (db *BoltDB) fetchPublicWinCounts(limit int) ([]*WinCount, error) {
	const funcName = "fetchPublicWinCounts"
	limit = clampLimit(limit, maxRecentWatermarks)
	counts := make(map[string]*WinCount)
	hidden := make(map[string]struct{})
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, watermarkBkt)
		if err != nil {
			return err
		}
		pbkt, err := fetchBucket(tx, participantBkt)
		if err != nil {
			return err
		}

		cursor := bkt.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var watermark IntervalWatermark
			err := json.Unmarshal(v, &watermark)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal watermark: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}

			if _, ok := hidden[watermark.Address]; ok {
				continue
			}
			count, ok := counts[watermark.Address]
			if !ok {
				// An address without a registry row is public.
				if pv := pbkt.Get([]byte(watermark.Address)); pv != nil {
					var participant Participant
					err = json.Unmarshal(pv, &participant)
					if err != nil {
						desc := fmt.Sprintf("%s: unable to unmarshal "+
							"participant: %v", funcName, err)
						return errors.DBError(errors.Parse, desc)
					}
					if !participant.Public {
						hidden[watermark.Address] = struct{}{}
						continue
					}
				}
				count = &WinCount{Address: watermark.Address}
				counts[watermark.Address] = count
			}
			count.Wins++
			count.TotalDifficulty += watermark.Difficulty
			if watermark.Difficulty > count.BestDifficulty {
				count.BestDifficulty = watermark.Difficulty
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	toReturn := make([]*WinCount, 0, len(counts))
	for _, count := range counts {
		count.AvgDifficulty = count.TotalDifficulty / float64(count.Wins)
		toReturn = append(toReturn, count)
	}
	sort.Slice(toReturn, func(i, j int) bool {
		if toReturn[i].Wins != toReturn[j].Wins {
			return toReturn[i].Wins > toReturn[j].Wins
		}
		return toReturn[i].Address < toReturn[j].Address
	})

	if len(toReturn) > limit {
		toReturn = toReturn[:limit]
	}
	return toReturn, nil
}

// upsertSubmission persists the provided submission if no record exists yet
// for its (interval, address) pair or if it exceeds the stored difficulty,
// using the same monotonic-max rule as watermarks.
//
// Returns whether a new record was created.
func (db *BoltDB) upsertSubmission(s *IntervalSubmission) (bool, error) {
	const funcName = "upsertSubmission"
	var created bool
	err := db.DB.Update(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, submissionBkt)
		if err != nil {
			return err
		}

		id := submissionID(s.IntervalID, s.Address)
		if v := bkt.Get(id); v != nil {
			var existing IntervalSubmission
			err = json.Unmarshal(v, &existing)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal submission: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if existing.Difficulty >= s.Difficulty {
				return nil
			}
		} else {
			created = true
		}

		sBytes, err := json.Marshal(s)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to marshal submission: %v",
				funcName, err)
			return errors.DBError(errors.Parse, desc)
		}
		err = bkt.Put(id, sBytes)
		if err != nil {
			desc := fmt.Sprintf("%s: unable to persist submission: %v",
				funcName, err)
			return errors.DBError(errors.PersistEntry, desc)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// fetchIntervalSubmissions returns the submissions recorded for the provided
// interval, bounded by maxIntervalSubmissions regardless of the provided
// limit.
//
// List is ordered by difficulty, highest comes first.
func (db *BoltDB) fetchIntervalSubmissions(intervalID int64, limit int) ([]*IntervalSubmission, error) {
	const funcName = "fetchIntervalSubmissions"
	limit = clampLimit(limit, maxIntervalSubmissions)
	submissions := make([]*IntervalSubmission, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, submissionBkt)
		if err != nil {
			return err
		}

		prefix := intervalIDToBigEndianBytes(intervalID)
		cursor := bkt.Cursor()
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			if len(submissions) == maxIntervalSubmissions {
				break
			}
			var submission IntervalSubmission
			err := json.Unmarshal(v, &submission)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal submission: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			submissions = append(submissions, &submission)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(submissions, func(i, j int) bool {
		return submissions[i].Difficulty > submissions[j].Difficulty
	})
	if len(submissions) > limit {
		submissions = submissions[:limit]
	}
	return submissions, nil
}

// fetchSubmissionsByAddress returns the submission history of the provided
// address.
//
// List is ordered by interval, most recent comes first.
func (db *BoltDB) fetchSubmissionsByAddress(address string, limit int) ([]*IntervalSubmission, error) {
	const funcName = "fetchSubmissionsByAddress"
	limit = clampLimit(limit, maxRecentWatermarks)
	submissions := make([]*IntervalSubmission, 0)
	err := db.DB.View(func(tx *bolt.Tx) error {
		bkt, err := fetchBucket(tx, submissionBkt)
		if err != nil {
			return err
		}

		cursor := bkt.Cursor()
		for k, v := cursor.Last(); k != nil && len(submissions) < limit; k, v = cursor.Prev() {
			var submission IntervalSubmission
			err := json.Unmarshal(v, &submission)
			if err != nil {
				desc := fmt.Sprintf("%s: unable to unmarshal submission: %v",
					funcName, err)
				return errors.DBError(errors.Parse, desc)
			}
			if submission.Address == address {
				submissions = append(submissions, &submission)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return submissions, nil
}
