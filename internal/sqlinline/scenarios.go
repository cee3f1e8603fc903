package sqlinline

const QScenarioListActive = `--sql 676cb1a0-20a3-441e-a1bf-4a4d47378274
select id, name, includes_hands, is_interior, allowed_product_types, composition_id, description,
    moods, time_slots, active
from scenarios
where active
order by id asc;
`

const QScenarioUpsert = `--sql 89cc0531-c476-45e5-a423-67a68b0658f0
insert into scenarios (id, name, includes_hands, is_interior, allowed_product_types, composition_id,
    description, moods, time_slots, active, created_at, updated_at)
values ($1::text, $2::text, $3::boolean, $4::boolean, $5::text[], $6::text, $7::text, $8::text[], $9::text[],
    $10::boolean, now(), now())
on conflict (id) do update set
    name = excluded.name,
    includes_hands = excluded.includes_hands,
    is_interior = excluded.is_interior,
    allowed_product_types = excluded.allowed_product_types,
    composition_id = excluded.composition_id,
    description = excluded.description,
    moods = excluded.moods,
    time_slots = excluded.time_slots,
    active = excluded.active,
    updated_at = now();
`
