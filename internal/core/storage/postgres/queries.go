package postgres

// SQL queries for journey state, audit facts and reporting tables.

const (
	// queryGetJourneyForUpdate locks the journey row for the duration of a
	// fold transaction. Two concurrent folds of the same journey serialize
	// here instead of losing updates.
	queryGetJourneyForUpdate = `
		SELECT journey_id, status, start_time, end_time, tat_minutes, age_days, last_updated
		FROM journeys
		WHERE journey_id = $1
		FOR UPDATE
	`

	queryGetJourney = `
		SELECT journey_id, status, start_time, end_time, tat_minutes, age_days, last_updated
		FROM journeys
		WHERE journey_id = $1
	`

	queryInsertJourney = `
		INSERT INTO journeys (journey_id, status, start_time, end_time, tat_minutes, age_days, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	queryUpdateJourney = `
		UPDATE journeys
		SET status = $2, start_time = $3, end_time = $4, tat_minutes = $5, age_days = $6, last_updated = $7
		WHERE journey_id = $1
	`

	queryGetStep = `
		SELECT id, journey_id, step_name, status, start_time, end_time, tat_minutes, performed_by, issues_count
		FROM steps
		WHERE journey_id = $1 AND step_name = $2
	`

	queryInsertStep = `
		INSERT INTO steps (journey_id, step_name, status, start_time, end_time, tat_minutes, performed_by, issues_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	queryUpdateStep = `
		UPDATE steps
		SET status = $2, start_time = $3, end_time = $4, tat_minutes = $5, performed_by = $6, issues_count = $7
		WHERE id = $1
	`

	queryListSteps = `
		SELECT id, journey_id, step_name, status, start_time, end_time, tat_minutes, performed_by, issues_count
		FROM steps
		WHERE journey_id = $1
		ORDER BY step_name ASC
	`

	queryGetSubProcess = `
		SELECT id, journey_id, name, status, start_time, end_time
		FROM sub_processes
		WHERE journey_id = $1 AND name = $2
	`

	queryInsertSubProcess = `
		INSERT INTO sub_processes (journey_id, name, status, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	queryUpdateSubProcess = `
		UPDATE sub_processes
		SET status = $2, start_time = $3, end_time = $4
		WHERE id = $1
	`

	queryListSubProcesses = `
		SELECT id, journey_id, name, status, start_time, end_time
		FROM sub_processes
		WHERE journey_id = $1
		ORDER BY name ASC
	`

	queryInsertEventFact = `
		INSERT INTO event_facts (
			journey_id, sub_process, step_name,
			event_ts, stage_start_ts, stage_end_ts,
			status_after, performed_by, risk_grade, uw_decision,
			issue_flag, issue_code, extra
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	queryListEventFacts = `
		SELECT id, journey_id, sub_process, step_name,
			event_ts, stage_start_ts, stage_end_ts,
			status_after, performed_by, risk_grade, uw_decision,
			issue_flag, issue_code, extra
		FROM event_facts
		WHERE ($1 = '' OR journey_id = $1)
		ORDER BY id ASC
	`

	// Retention cascade. Dependent rows first, journey row last.
	queryDeleteEventFacts   = `DELETE FROM event_facts WHERE journey_id = $1`
	queryDeleteSteps        = `DELETE FROM steps WHERE journey_id = $1`
	queryDeleteSubProcesses = `DELETE FROM sub_processes WHERE journey_id = $1`
	queryDeleteJourney      = `DELETE FROM journeys WHERE journey_id = $1`
)

// Reporting tables: rebuild replaces the full table contents in one transaction.
const (
	queryTruncateStageMaster = `DELETE FROM stage_master`

	queryInsertStageMaster = `
		INSERT INTO stage_master (
			application_id, stage, stage_start, stage_end,
			tat_minutes, age_days, risk_grade, uw_decision,
			stage_status, performed_by, issues_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	queryTruncateApplicationMaster = `DELETE FROM application_master`

	queryInsertApplicationMaster = `
		INSERT INTO application_master (
			application_id, product_type, channel,
			application_start, application_end,
			total_tat_minutes, age_days,
			final_risk_grade, final_uw_decision, application_status,
			performed_by, issues_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
)
