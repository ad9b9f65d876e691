package records

// Query templates the Record Service composes against ports.Store /
// ports.Tx. Every placeholder is positional ($N); no value is ever
// concatenated into query text: no dynamic
// string-based SQL composition.
const (
	queryPatientExists = `SELECT EXISTS(SELECT 1 FROM patients WHERE patient_id = $1)`

	queryInsertPatient = `
		INSERT INTO patients (patient_id, first_name, last_name, sex)
		VALUES ($1, $2, $3, $4)`

	queryPatientsByName = `
		SELECT patient_id, first_name, last_name, sex
		FROM patients
		WHERE first_name = $1 AND last_name = $2`

	queryPatientByID = `
		SELECT patient_id, first_name, last_name, sex
		FROM patients
		WHERE patient_id = $1`

	// queryVisibleRecordExists reports whether a (patient, loinc,
	// valid-start) lineage already has a row visible at snapshot,
	// regardless of that row's own insertion time — a second insert into
	// the same lineage is a duplicate no matter when the first arrived.
	queryVisibleRecordExists = `
		SELECT EXISTS(
			SELECT 1 FROM measurements
			WHERE patient_id = $1 AND loinc_num = $2 AND valid_start_time = $3
			  AND transaction_insertion_time <= $4
			  AND (transaction_deletion_time IS NULL OR transaction_deletion_time > $4)
		)`

	queryInsertMeasurement = `
		INSERT INTO measurements
			(patient_id, loinc_num, value, unit, valid_start_time, transaction_insertion_time)
		VALUES ($1, $2, $3, $4, $5, $6)`

	// queryVisibleLineageRow finds the row of a (patient, loinc,
	// valid-start) lineage visible at snapshot. At most one row can
	// satisfy this given the bi-temporal lineage invariants.
	queryVisibleLineageRow = `
		SELECT measurement_id, patient_id, loinc_num, value, unit,
		       valid_start_time, transaction_insertion_time, transaction_deletion_time
		FROM measurements
		WHERE patient_id = $1 AND loinc_num = $2 AND valid_start_time = $3
		  AND transaction_insertion_time <= $4
		  AND (transaction_deletion_time IS NULL OR transaction_deletion_time > $4)`

	// queryFutureLineageExists reports whether a newer transaction-time
	// version of the same lineage has already been recorded.
	queryFutureLineageExists = `
		SELECT EXISTS(
			SELECT 1 FROM measurements
			WHERE patient_id = $1 AND loinc_num = $2 AND valid_start_time = $3
			  AND transaction_insertion_time > $4
		)`

	queryStampDeletion = `
		UPDATE measurements
		SET transaction_deletion_time = $5
		WHERE patient_id = $1 AND loinc_num = $2 AND valid_start_time = $3
		  AND transaction_insertion_time <= $4
		  AND (transaction_deletion_time IS NULL OR transaction_deletion_time > $5)`

	// queryLatestValidStartOnDate resolves a date-only delete target to
	// the most recent ValidStartTime on that calendar day among rows
	// visible at snapshot, the date-only delete resolution rule.
	queryLatestValidStartOnDate = `
		SELECT valid_start_time FROM measurements
		WHERE patient_id = $1 AND loinc_num = $2
		  AND valid_start_time >= $3 AND valid_start_time < $4
		  AND transaction_insertion_time <= $5
		  AND (transaction_deletion_time IS NULL OR transaction_deletion_time > $5)
		ORDER BY valid_start_time DESC
		LIMIT 1`
)
