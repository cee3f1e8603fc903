package sqlinline

const ruleColumns = `id, name, start_hour, buffer_hours, days, time_slot, mood, tags, active, created_at, updated_at`

const QRuleListActive = `--sql f14bc8b5-b9b4-466b-9499-b6cc170a6c71
select ` + ruleColumns + `
from schedule_rules
where active
order by start_hour asc, id asc;
`

const QRuleSelectByID = `--sql fa3ccc9d-55dd-4e52-91e5-b1a9a0e040c5
select ` + ruleColumns + `
from schedule_rules
where id = $1::text;
`

const QRuleUpsert = `--sql b440ccbf-0d1e-41f7-8a0d-2f3829130ed5
insert into schedule_rules (id, name, start_hour, buffer_hours, days, time_slot, mood, tags, active, created_at, updated_at)
values ($1::text, $2::text, $3::int, $4::int, $5::int[], $6::text, $7::text, $8::text[], $9::boolean, now(), now())
on conflict (id) do update set
    name = excluded.name,
    start_hour = excluded.start_hour,
    buffer_hours = excluded.buffer_hours,
    days = excluded.days,
    time_slot = excluded.time_slot,
    mood = excluded.mood,
    tags = excluded.tags,
    active = excluded.active,
    updated_at = now();
`
