package sqlinline

const assetColumns = `id, category, subtype, name, tags, moods, time_slots, image_url, storage_key,
    usage_count, last_used_at, active, eating_method, plate_required, created_at, updated_at`

const QAssetListActive = `--sql f989cef2-2d81-4e50-b8e4-5ba09a627776
select ` + assetColumns + `
from assets
where active
order by category asc, created_at asc, id asc;
`

const QAssetSelectByID = `--sql 4b9f2da3-9d08-4b85-ab09-3423a0514951
select ` + assetColumns + `
from assets
where id = $1::text;
`

// QAssetIncrementUsage never reads the counter back into the application, so
// concurrent runs selecting the same asset cannot lose an increment.
const QAssetIncrementUsage = `--sql 6e76438d-4b09-4cdd-a156-c412ac3b199c
update assets
set usage_count = usage_count + 1,
    last_used_at = greatest(coalesce(last_used_at, $2::timestamptz), $2::timestamptz),
    updated_at = now()
where id = $1::text;
`

const QAssetUpsert = `--sql f864cdb6-2cc7-4489-9190-cc2851483057
insert into assets (id, category, subtype, name, tags, moods, time_slots, image_url, storage_key,
    usage_count, active, eating_method, plate_required, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text[], $6::text[], $7::text[], $8::text, $9::text,
    $10::int, $11::boolean, $12::text, $13::boolean, now(), now())
on conflict (id) do update set
    category = excluded.category,
    subtype = excluded.subtype,
    name = excluded.name,
    tags = excluded.tags,
    moods = excluded.moods,
    time_slots = excluded.time_slots,
    image_url = excluded.image_url,
    storage_key = excluded.storage_key,
    active = excluded.active,
    eating_method = excluded.eating_method,
    plate_required = excluded.plate_required,
    updated_at = now();
`
