package sqlinline

const slotColumns = `id::text, rule_id, target_date::text, target_time, trigger, idempotency_key, status, stage,
    coalesce(run_id, ''), result, coalesce(error, ''), total_cost, coalesce(approval_ref, ''),
    created_at, updated_at, started_at, finished_at`

const QSlotCreateIfAbsent = `--sql 7a6ed7c9-1743-438f-8009-f6e68aa94f51
insert into content_slots (id, rule_id, target_date, target_time, trigger, idempotency_key, status, stage, total_cost, created_at, updated_at)
values ($1::uuid, $2::text, $3::text::date, $4::timestamptz, $5::text, $6::text, 'pending', 'asset_selection', 0, $7::timestamptz, $7::timestamptz)
on conflict (idempotency_key) do nothing
returning id::text;
`

const QSlotSelectByID = `--sql 8e557cd3-33e2-4f73-a5c1-168270e5e1e5
select ` + slotColumns + `
from content_slots
where id = $1::uuid;
`

const QSlotLatestForRuleDate = `--sql 90baaaf7-9595-4ab1-8f22-b2ef3ec9c623
select ` + slotColumns + `
from content_slots
where rule_id = $1::text
  and target_date = $2::text::date
order by created_at desc
limit 1;
`

const QSlotList = `--sql 0251f213-95c4-4e1e-a888-4beb4a31c682
select ` + slotColumns + `
from content_slots
where ($1::text = '' or status = $1::text)
  and ($2::text = '' or rule_id = $2::text)
order by created_at desc
limit $3::int;
`

const QSlotBegin = `--sql 2b3ca60b-61de-455a-b27d-2783d8ae4ef4
update content_slots
set status = 'generating',
    stage = 'asset_selection',
    run_id = $2::text,
    error = null,
    started_at = $3::timestamptz,
    finished_at = null,
    updated_at = now()
where id = $1::uuid
  and status = 'pending'
returning ` + slotColumns + `;
`

const QSlotStatus = `--sql d8874a9d-ad35-4ad0-81fd-e9b37f553549
select status
from content_slots
where id = $1::uuid;
`

const QSlotUpdateProgress = `--sql 071699f0-5c48-4173-b9f0-0da510b6404f
update content_slots
set stage = $2::text,
    result = $3::jsonb,
    total_cost = $4::double precision,
    updated_at = now()
where id = $1::uuid
  and status = 'generating';
`

const QSlotComplete = `--sql 8c06f256-7a7c-446a-a0b5-234cdfc1a1c9
update content_slots
set status = 'awaiting_approval',
    stage = 'terminal',
    result = $2::jsonb,
    total_cost = $3::double precision,
    approval_ref = $4::text,
    finished_at = now(),
    updated_at = now()
where id = $1::uuid
  and status = 'generating';
`

const QSlotFail = `--sql c5cd45bd-30a8-49e3-962e-1b79679555ab
update content_slots
set status = 'failed',
    stage = $2::text,
    error = $3::text,
    result = coalesce($4::jsonb, result),
    total_cost = $5::double precision,
    finished_at = now(),
    updated_at = now()
where id = $1::uuid
  and status in ('pending', 'generating');
`

const QSlotSaveResult = `--sql 1eb5ee48-1a4f-4161-9417-6f77961da321
update content_slots
set result = $2::jsonb,
    total_cost = $3::double precision,
    updated_at = now()
where id = $1::uuid;
`

const QSlotSetStatus = `--sql 0575e0dd-fdf0-44fc-aa91-3876cb0cc9e0
update content_slots
set status = $3::text,
    error = case
        when $3::text = 'pending' then null
        when $4::text <> '' then $4::text
        else error
    end,
    run_id = case when $3::text = 'pending' then null else run_id end,
    finished_at = case
        when $3::text in ('published', 'rejected', 'failed', 'cancelled') then now()
        when $3::text = 'pending' then null
        else finished_at
    end,
    updated_at = now()
where id = $1::uuid
  and status = $2::text;
`

const QSlotFailStuck = `--sql 4e40ade9-53bc-4fe6-8fc3-008599052dde
update content_slots
set status = 'failed',
    error = $2::text,
    finished_at = now(),
    updated_at = now()
where status in ('pending', 'generating')
  and updated_at < $1::timestamptz
returning id::text;
`
