package sqlinline

// QAuditInsertBatch appends a run's audit events in one statement from
// parallel arrays.
const QAuditInsertBatch = `--sql 8ee93135-9093-4fdd-8bed-6067dc0a5d38
insert into selection_audit (run_id, seq, phase, role, payload, created_at)
select e.run_id, e.seq, e.phase, e.role, e.payload::jsonb, e.created_at
from unnest($1::text[], $2::int[], $3::text[], $4::text[], $5::text[], $6::timestamptz[])
    as e(run_id, seq, phase, role, payload, created_at);
`

const QAuditListByRun = `--sql 42166799-1848-401e-8ada-fcc3428a33da
select run_id, seq, phase, role, payload, created_at
from selection_audit
where run_id = $1::text
order by seq asc;
`
