// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

const (
	createTableParticipants = `
	CREATE TABLE IF NOT EXISTS participants (
		address        TEXT    PRIMARY KEY,
		active         BOOLEAN NOT NULL,
		public         BOOLEAN NOT NULL,
		bestdifficulty FLOAT8  NOT NULL,
		intervalcount  INT8    NOT NULL,
		createdon      INT8    NOT NULL,
		updatedon      INT8    NOT NULL
	);`

	createTableWatermarks = `
	CREATE TABLE IF NOT EXISTS watermarks (
		intervalid   INT8   PRIMARY KEY,
		address      TEXT   NOT NULL,
		difficulty   FLOAT8 NOT NULL,
		intervaltime INT8   NOT NULL,
		createdon    INT8   NOT NULL
	);`

	createTableSubmissions = `
	CREATE TABLE IF NOT EXISTS submissions (
		intervalid INT8   NOT NULL,
		address    TEXT   NOT NULL,
		difficulty FLOAT8 NOT NULL,
		PRIMARY KEY (intervalid, address)
	);`

	purgeDB = `DROP TABLE IF EXISTS
		participants,
		watermarks,
		submissions;`

	selectParticipant = `
	SELECT address, active, public, bestdifficulty, intervalcount,
		createdon, updatedon
	FROM participants
	WHERE address=$1;`

	insertParticipant = `
	INSERT INTO participants(address, active, public, bestdifficulty,
		intervalcount, createdon, updatedon)
	VALUES ($1, $2, $3, $4, $5, $6, $7);`

	upsertParticipantAggregates = `
	INSERT INTO participants(address, active, public, bestdifficulty,
		intervalcount, createdon, updatedon)
	VALUES ($1, TRUE, TRUE, $2, $3, $4, $4)
	ON CONFLICT (address)
	DO UPDATE SET
		bestdifficulty=GREATEST(participants.bestdifficulty, EXCLUDED.bestdifficulty),
		intervalcount=participants.intervalcount+EXCLUDED.intervalcount,
		updatedon=EXCLUDED.updatedon;`

	updateParticipantVisibility = `
	UPDATE participants
	SET public=$2, updatedon=$3
	WHERE address=$1;`

	updateParticipantActive = `
	UPDATE participants
	SET active=FALSE, updatedon=$2
	WHERE address=$1;`

	selectWatermark = `
	SELECT intervalid, address, difficulty, intervaltime, createdon
	FROM watermarks
	WHERE intervalid=$1;`

	insertWatermark = `
	INSERT INTO watermarks(intervalid, address, difficulty, intervaltime,
		createdon)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (intervalid)
	DO UPDATE SET
		address=EXCLUDED.address,
		difficulty=EXCLUDED.difficulty,
		intervaltime=EXCLUDED.intervaltime,
		createdon=EXCLUDED.createdon
	WHERE watermarks.difficulty < EXCLUDED.difficulty
	RETURNING intervalid;`

	selectRecentWatermarks = `
	SELECT intervalid, address, difficulty, intervaltime, createdon
	FROM watermarks
	ORDER BY intervalid DESC
	LIMIT $1;`

	selectWatermarksByAddress = `
	SELECT intervalid, address, difficulty, intervaltime, createdon
	FROM watermarks
	WHERE address=$1
	ORDER BY intervalid DESC
	LIMIT $2;`

	selectPublicWinCounts = `
	SELECT w.address, COUNT(*), SUM(w.difficulty), AVG(w.difficulty),
		MAX(w.difficulty)
	FROM watermarks w
	LEFT JOIN participants p ON p.address = w.address
	WHERE COALESCE(p.public, TRUE)
	GROUP BY w.address
	ORDER BY COUNT(*) DESC, w.address ASC
	LIMIT $1;`

	insertSubmission = `
	INSERT INTO submissions(intervalid, address, difficulty)
	VALUES ($1, $2, $3)
	ON CONFLICT (intervalid, address)
	DO UPDATE SET difficulty=EXCLUDED.difficulty
	WHERE submissions.difficulty < EXCLUDED.difficulty
	RETURNING (xmax = 0);`

	selectIntervalSubmissions = `
	SELECT intervalid, address, difficulty
	FROM submissions
	WHERE intervalid=$1
	ORDER BY difficulty DESC
	LIMIT $2;`

	selectSubmissionsByAddress = `
	SELECT intervalid, address, difficulty
	FROM submissions
	WHERE address=$1
	ORDER BY intervalid DESC
	LIMIT $2;`
)
