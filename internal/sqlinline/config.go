package sqlinline

const QConfigSelect = `--sql a55be404-90e5-48dd-af85-d3a4dc1dc362
select value
from pipeline_config
where key = $1::text;
`

const QConfigUpsert = `--sql 01f7c17b-ec4f-4a5d-b639-d686af82f9f6
insert into pipeline_config (key, value, updated_at)
values ($1::text, $2::jsonb, now())
on conflict (key) do update set
    value = excluded.value,
    updated_at = now();
`
