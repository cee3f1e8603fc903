package sqlinline

const QHistoryRecent = `--sql 3abe2714-5e60-48da-acd0-300d05a54992
select id::text, slot_id::text, created_at, scenario_id, composition_id, table_id, hand_style_id,
    product_id, plate_id, cup_id, special_element_included
from production_history
order by created_at desc, seq desc
limit $1::int;
`

const QHistoryInsert = `--sql cacbb570-cee4-4bec-aad3-2e06779fa99c
insert into production_history (id, slot_id, created_at, scenario_id, composition_id, table_id,
    hand_style_id, product_id, plate_id, cup_id, special_element_included)
values ($1::uuid, $2::uuid, $3::timestamptz, $4::text, $5::text, $6::text, $7::text, $8::text,
    $9::text, $10::text, $11::boolean);
`
